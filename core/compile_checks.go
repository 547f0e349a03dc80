package core

import (
	"context"

	glog "github.com/goliatone/go-logger/glog"
)

type NotificationHandler interface {
	Handle(ctx context.Context, req InboundRequest) (InboundResult, error)
}

var (
	_ NotificationHandler = (*Service)(nil)
	_ RawConfigLoader     = EnvConfigLoader{}
	_ ConfigProvider      = (*CfgxConfigProvider)(nil)
	_ OptionsResolver     = GoOptionsResolver{}

	_ Logger         = glog.Nop()
	_ LoggerProvider = glog.ProviderFromLogger(glog.Nop())
)
