package metrics

import "errors"

var (
	// ErrMetricAlreadyRegistered 指标已注册错误
	ErrMetricAlreadyRegistered = errors.New("metrics: metric already registered")

	// ErrInvalidMetricName 指标名无效
	ErrInvalidMetricName = errors.New("metrics: invalid metric name")
)
