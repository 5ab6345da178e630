package dao

import (
	"errors"

	"github.com/go-sql-driver/mysql"
)

const mysqlErrDupEntry = 1062

// IsDuplicateErr 判断是否主键 / 唯一索引冲突。
//
// 并发提交时 (job_id, seq) 唯一索引冲突说明有其他写入者抢先提交。
func IsDuplicateErr(err error) bool {
	if err == nil {
		return false
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == mysqlErrDupEntry
	}
	return false
}
