package framerelease

// RefreshRateProvider 显示刷新率查询接口
// 返回刷新率（Hz），未知时返回 RefreshRateUnknown。
type RefreshRateProvider interface {
	RefreshRate() float64
}

// StaticRefreshRate 固定刷新率（来自配置）
type StaticRefreshRate float64

// RefreshRate 实现 RefreshRateProvider
func (r StaticRefreshRate) RefreshRate() float64 {
	return float64(r)
}

// NewFromProvider 根据刷新率查询结果创建调整器
func NewFromProvider(provider RefreshRateProvider, sampler VsyncSampler, opts ...Option) (*Adjuster, error) {
	if provider == nil {
		return NewUnaligned(opts...), nil
	}
	return New(provider.RefreshRate(), sampler, opts...)
}
