//go:build e2e

package dao

import (
	"fmt"
	"testing"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "root:root@tcp(localhost:13316)/notify?charset=utf8mb4&collation=utf8mb4_general_ci&parseTime=True&loc=Local&timeout=1s&readTimeout=3s&writeTimeout=3s"
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		t.Fatal(fmt.Errorf("数据库连接失败: %w", err))
	}
	if err = db.AutoMigrate(&Preference{}, &ConsentAudit{}, &Receipt{},
		&Broadcast{}, &ChannelTemplate{}, &User{}, &SegmentMember{}); err != nil {
		t.Fatal(err)
	}
	return db
}
