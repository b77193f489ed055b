package initialize

import (
	"fmt"
	"io"

	"github.com/opentracing/opentracing-go"
	"github.com/uber/jaeger-client-go"
	jaegercfg "github.com/uber/jaeger-client-go/config"

	"shopcart_srvs/cart_srv/config"
)

//初始化jaeger并设置成全局tracer，返回的closer退出时要关掉
func InitTracer(c config.JaegerConfig) (opentracing.Tracer, io.Closer, error) {
	name := c.Name
	if name == "" {
		name = "mxshop-cart"
	}
	cfg := jaegercfg.Configuration{
		Sampler: &jaegercfg.SamplerConfig{
			Type:  jaeger.SamplerTypeConst,
			Param: 1,
		},
		Reporter: &jaegercfg.ReporterConfig{
			LogSpans:           true,
			LocalAgentHostPort: fmt.Sprintf("%s:%d", c.Host, c.Port),
		},
		ServiceName: name,
	}
	tracer, closer, err := cfg.NewTracer(jaegercfg.Logger(jaeger.StdLogger))
	if err != nil {
		return nil, nil, err
	}
	opentracing.SetGlobalTracer(tracer)
	return tracer, closer, nil
}
