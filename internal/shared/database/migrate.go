package database

import (
	"medqueue/internal/queues"
	"medqueue/internal/users"

	"gorm.io/gorm"
)

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&users.User{},
		&queues.Queue{},
		&queues.QueueItem{},
		&queues.QueueItemTransition{},
	)
}
