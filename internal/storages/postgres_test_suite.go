package storage

import (
	"errors"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v4/stdlib"
	"github.com/practice-sem-2/chat-service/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type PostgresTestSuite struct {
	suite.Suite
	db *sqlx.DB
	m  *migrate.Migrate
}

func (s *PostgresTestSuite) SetupSuite() {
	var err error
	viper.AutomaticEnv()
	dbDsn := viper.GetString("DB_DSN")
	migrationsDsn := viper.GetString("MIGRATIONS_DSN")
	migrationsDir := viper.GetString("MIGRATIONS_DIR")

	if dbDsn == "" || migrationsDsn == "" || migrationsDir == "" {
		s.T().Skip("DB_DSN, MIGRATIONS_DSN and MIGRATIONS_DIR must be defined to run postgres tests")
	}

	s.db, err = sqlx.Connect("pgx", dbDsn)
	require.NoError(s.T(), err, "failed to connect to database")

	s.m, err = migrate.New(migrationsDir, migrationsDsn)

	require.NoError(s.T(), err, "failed to open migrations")

	err = s.m.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		err = nil
	}
	require.NoError(s.T(), err, "failed to migrate database")
}

func (s *PostgresTestSuite) TearDownSuite() {
	if s.m != nil {
		_ = s.m.Down()
	}
	if s.db != nil {
		_ = s.db.Close()
	}
}

func (s *PostgresTestSuite) TearDownTest() {
	if s.db == nil {
		return
	}
	_, err := s.db.Exec("TRUNCATE messages, chat_members, chats, users")
	require.NoError(s.T(), err, "can't teardown test")
}

func (s *PostgresTestSuite) newUser(name string) *models.User {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &models.User{
		UserID:         uuid.NewString(),
		ExternalAuthID: "ext_" + uuid.NewString(),
		Name:           name,
		Email:          uuid.NewString() + "@example.com",
		Dob:            time.Date(1990, 1, 2, 0, 0, 0, 0, time.UTC),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func (s *PostgresTestSuite) newDirectChat(a, b string) *models.Chat {
	now := time.Now().UTC().Truncate(time.Microsecond)
	key := PairKey(a, b)
	return &models.Chat{
		ChatID:    uuid.NewString(),
		PairKey:   &key,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
