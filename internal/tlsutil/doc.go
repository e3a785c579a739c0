// Package tlsutil 提供集中式 TLS 配置，
// 为会话存储客户端（Redis、MongoDB）和指标服务端提供安全加固的 TLS 设置（TLS 1.2+，仅 AEAD 密码套件）。
package tlsutil
