package dao

import (
	"context"
	"errors"
	"time"

	"github.com/ego-component/egorm"
	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

// Preference 用户偏好表
// 每个 (user_id, topic_key, channel_key) 至多一行，整批替换写入
type Preference struct {
	ID         uint64 `gorm:"primaryKey;comment:'雪花算法ID'"`
	UserID     int64  `gorm:"type:BIGINT;NOT NULL;uniqueIndex:idx_user_topic_channel,priority:1;comment:'用户ID'"`
	TopicKey   string `gorm:"type:VARCHAR(128);NOT NULL;uniqueIndex:idx_user_topic_channel,priority:2;comment:'主题'"`
	ChannelKey string `gorm:"type:VARCHAR(64);NOT NULL;uniqueIndex:idx_user_topic_channel,priority:3;comment:'渠道'"`
	OptIn      bool   `gorm:"NOT NULL;comment:'是否开启'"`
	Digest     string `gorm:"type:ENUM('INSTANT','DAILY','WEEKLY','NONE');NOT NULL;DEFAULT:'INSTANT';comment:'聚合节奏'"`
	QuietHours string `gorm:"type:VARCHAR(256);NOT NULL;DEFAULT:'[]';comment:'免打扰小时，JSON数组'"`
	Source     string `gorm:"type:VARCHAR(64);NOT NULL;comment:'同意来源'"`
	Actor      string `gorm:"type:VARCHAR(128);NOT NULL;comment:'最后修改者'"`
	RequestID  string `gorm:"type:VARCHAR(128);NOT NULL;comment:'请求ID'"`
	Version    int    `gorm:"type:INT;NOT NULL;DEFAULT:1;comment:'同意版本，按用户单调递增'"`
	Ctime      int64
	Utime      int64
}

// ConsentAudit 偏好变更审计表，只追加
type ConsentAudit struct {
	ID         uint64 `gorm:"primaryKey;comment:'雪花算法ID'"`
	UserID     int64  `gorm:"type:BIGINT;NOT NULL;index:idx_user_ctime,priority:1;comment:'用户ID'"`
	TopicKey   string `gorm:"type:VARCHAR(128);NOT NULL;comment:'主题'"`
	ChannelKey string `gorm:"type:VARCHAR(64);NOT NULL;comment:'渠道'"`
	Previous   string `gorm:"type:TEXT;comment:'变更前状态，JSON，首次写入为空'"`
	Current    string `gorm:"type:TEXT;NOT NULL;comment:'变更后状态，JSON'"`
	Source     string `gorm:"type:VARCHAR(64);NOT NULL;comment:'同意来源'"`
	Actor      string `gorm:"type:VARCHAR(128);NOT NULL;comment:'操作者'"`
	RequestID  string `gorm:"type:VARCHAR(128);NOT NULL;comment:'请求ID'"`
	Ctime      int64  `gorm:"index:idx_user_ctime,priority:2"`
}

type PreferenceDAO interface {
	// ListByUserID 查询一个用户的全部偏好记录
	ListByUserID(ctx context.Context, userID int64) ([]Preference, error)
	// ReplaceByUserID 原子替换一个用户的全部偏好记录，并在同一事务里追加审计记录
	// 旧记录整体删除后重建，不可用渠道遗留的陈旧组合随之清除
	ReplaceByUserID(ctx context.Context, userID int64, prefs []Preference, audits []ConsentAudit) error
}

type AuditDAO interface {
	// BatchCreate 追加审计记录
	BatchCreate(ctx context.Context, audits []ConsentAudit) error
	// ListByUserID 按时间倒序查询审计记录
	ListByUserID(ctx context.Context, userID int64, offset, limit int) ([]ConsentAudit, error)
}

type preferenceDAO struct {
	db *egorm.Component
}

func NewPreferenceDAO(db *egorm.Component) PreferenceDAO {
	return &preferenceDAO{db: db}
}

func (d *preferenceDAO) ListByUserID(ctx context.Context, userID int64) ([]Preference, error) {
	var res []Preference
	err := d.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Find(&res).Error
	return res, err
}

func (d *preferenceDAO) ReplaceByUserID(ctx context.Context, userID int64, prefs []Preference, audits []ConsentAudit) error {
	now := time.Now().UnixMilli()
	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", userID).Delete(&Preference{}).Error; err != nil {
			return err
		}
		if len(prefs) > 0 {
			for i := range prefs {
				prefs[i].Ctime, prefs[i].Utime = now, now
			}
			if err := tx.Create(&prefs).Error; err != nil {
				return err
			}
		}
		if len(audits) > 0 {
			for i := range audits {
				audits[i].Ctime = now
			}
			if err := tx.Create(&audits).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

type auditDAO struct {
	db *egorm.Component
}

func NewAuditDAO(db *egorm.Component) AuditDAO {
	return &auditDAO{db: db}
}

func (d *auditDAO) BatchCreate(ctx context.Context, audits []ConsentAudit) error {
	if len(audits) == 0 {
		return nil
	}
	now := time.Now().UnixMilli()
	for i := range audits {
		if audits[i].Ctime == 0 {
			audits[i].Ctime = now
		}
	}
	return d.db.WithContext(ctx).Create(&audits).Error
}

func (d *auditDAO) ListByUserID(ctx context.Context, userID int64, offset, limit int) ([]ConsentAudit, error) {
	var res []ConsentAudit
	err := d.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("ctime DESC, id DESC").
		Offset(offset).Limit(limit).
		Find(&res).Error
	return res, err
}

// isUniqueConstraintError 检查是否是唯一索引冲突错误
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	me := new(mysql.MySQLError)
	if ok := errors.As(err, &me); ok {
		const uniqueIndexErrNo uint16 = 1062
		return me.Number == uniqueIndexErrNo
	}
	return false
}
