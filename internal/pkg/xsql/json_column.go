package xsql

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JsonColumn 以 json 形式存储的列，Valid = false 时写入 NULL。
type JsonColumn[T any] struct {
	Val   T
	Valid bool
}

// GormDataType 让 gorm 把整个字段映射为一列，而不是解析 Val 的结构。
func (JsonColumn[T]) GormDataType() string {
	return "json"
}

func (jc JsonColumn[T]) Value() (driver.Value, error) {
	if !jc.Valid {
		return nil, nil
	}
	return json.Marshal(jc.Val)
}

func (jc *JsonColumn[T]) Scan(src any) error {
	var bs []byte
	switch val := src.(type) {
	case nil:
		var zero T
		jc.Val, jc.Valid = zero, false
		return nil
	case []byte:
		bs = val
	case string:
		bs = []byte(val)
	default:
		return fmt.Errorf("[jdelivery] unsupported json column source type: %T", src)
	}

	if err := json.Unmarshal(bs, &jc.Val); err != nil {
		return err
	}
	jc.Valid = true
	return nil
}

func JsonColumnOf[T any](val T) JsonColumn[T] {
	return JsonColumn[T]{Val: val, Valid: true}
}
