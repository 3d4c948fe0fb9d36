// Package db 保存数据库表结构定义。
package db

import _ "embed"

// Schema 完整的建表语句（幂等）
//
//go:embed schema.sql
var Schema string
