package gormdb

import (
	"database/sql/driver"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// LongText 跨数据库的长文本类型：MySQL 使用 LONGTEXT，其余使用 TEXT。
// 后端报错信息和尝试列表可能超过 VARCHAR 上限。
type LongText string

// GormDBDataType implements schema.GormDBDataTypeInterface.
func (LongText) GormDBDataType(db *gorm.DB, _ *schema.Field) string {
	if db.Dialector.Name() == "mysql" {
		return "LONGTEXT"
	}
	return "TEXT"
}

// Value implements driver.Valuer.
func (lt LongText) Value() (driver.Value, error) {
	return string(lt), nil
}

// Scan implements sql.Scanner.
func (lt *LongText) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*lt = ""
	case string:
		*lt = LongText(v)
	case []byte:
		*lt = LongText(v)
	default:
		return fmt.Errorf("unsupported LongText scan type %T", value)
	}
	return nil
}

func (lt LongText) String() string {
	return string(lt)
}
