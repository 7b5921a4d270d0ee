package config

import (
	"fmt"
	"log"
	"os"

	"tasclms/internal/entity"

	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func ConnectionDb() *gorm.DB {
	if err := godotenv.Load(); err != nil {
		log.Printf("error load env %s", err)
	}

	dsn := os.Getenv("DATABASE_URL")
	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN:                  dsn,
		PreferSimpleProtocol: true, // Disable prepared statements completely
	}), &gorm.Config{
		PrepareStmt: false,
		// Duplicate-key violations surface as gorm.ErrDuplicatedKey so the
		// service layer can map them to domain conflicts.
		TranslateError: true,
	})
	if err != nil {
		log.Printf("error connect to database %s", err)
	}

	fmt.Println("success connect to db")
	return db
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&entity.User{},
		&entity.VerificationToken{},
		&entity.Session{},
		&entity.OAuthLink{},
		&entity.Organization{},
		&entity.Membership{},
		&entity.MFASecret{},
		&entity.SecurityLog{},
	)
}
