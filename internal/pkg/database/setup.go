package database

import (
	"fmt"
	"log"
	"time"

	"github.com/FelixHaller/RoomCanvas/app/models"
	"github.com/FelixHaller/RoomCanvas/internal/pkg/env"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

const maxRetries = 5
const retryDelay = 5 * time.Second

var DB *gorm.DB

func SetupDatabase() {
	var err error
	// "user:pass@tcp(127.0.0.1:3306)/dbname?charset=utf8mb4&parseTime=True&loc=Local"
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		env.GetEnv("DB_USER", ""),
		env.GetEnv("DB_PASSWORD", ""),
		env.GetEnv("DB_HOST", "127.0.0.1"),
		env.GetEnv("DB_PORT", "3306"),
		env.GetEnv("DB_NAME", ""),
	)

	for i := 0; i < maxRetries; i++ {
		DB, err = gorm.Open(mysql.New(mysql.Config{
			DSN:                       dsn,
			DefaultStringSize:         256,
			DisableDatetimePrecision:  true,
			DontSupportRenameIndex:    true,
			DontSupportRenameColumn:   true,
			SkipInitializeWithVersion: false,
		}), &gorm.Config{})
		if err == nil {
			DB.AutoMigrate(
				&models.User{},
				&models.Plan{},
				&models.Subscription{},
				&models.ImageConsumption{},
				&models.ProcessingHistoryEntry{},
				&models.BillingWebhookEvent{},
			)
			seedPlans(DB)

			return
		}

		log.Printf("Failed to connect to database (try %d/%d): %v", i+1, maxRetries, err)
		if i < maxRetries-1 {
			log.Printf("Retrying in %v...", retryDelay)
			time.Sleep(retryDelay)
		}
	}

	if err != nil {
		panic(err)
	}
}

// GetDB returns the shared database handle
func GetDB() *gorm.DB {
	return DB
}

// seedPlans makes sure the plan catalog exists. Migrations own the canonical
// seed; this covers fresh dev databases that only ran AutoMigrate.
func seedPlans(db *gorm.DB) {
	plans := []models.Plan{
		{Name: models.PlanFree, Price: 0, IncludedImages: 5, Description: "5 image transformations to try RoomCanvas"},
		{Name: models.PlanBasic, Price: 19, IncludedImages: 50, Description: "50 image transformations per month"},
		{Name: models.PlanBusiness, Price: 49, IncludedImages: 200, Description: "200 image transformations per month"},
	}
	for _, plan := range plans {
		var existing models.Plan
		if err := db.Where("name = ?", plan.Name).First(&existing).Error; err == gorm.ErrRecordNotFound {
			if err := db.Create(&plan).Error; err != nil {
				log.Printf("Failed to seed plan %s: %v", plan.Name, err)
			}
		}
	}
}
