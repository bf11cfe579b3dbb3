// Package handler 按业务域划分的 HTTP 处理器：auth、tour、booking、payment、admin
//
// 本包仅用于 `swag init --dir ./internal/handler` 扫描注解。
package handler
