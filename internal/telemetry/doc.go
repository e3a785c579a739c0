// Package telemetry 封装 OpenTelemetry SDK 初始化逻辑，
// 为编排引擎提供 TracerProvider、MeterProvider 以及基于 OTel 指标的 MetricsRecorder。
// 当遥测功能禁用时，使用 noop 实现，不连接任何外部服务。
package telemetry
