//go:build wireinject
// +build wireinject

package wire

import (
	"github.com/google/wire"

	"patternpals/internal/config"
	"patternpals/internal/dbmysql"
	"patternpals/internal/notify"
)

func InitializeApplication() (*Application, error) {
	wire.Build(
		config.Load,
		dbmysql.NewMySQL,
		dbmysql.NewAttemptRepository,
		dbmysql.NewDeviceRepository,
		dbmysql.NewCriticalRepository,
		ProvideAnalyticsSink,
		ProvideFirebaseApp,
		ProvideFirebaseMessaging,
		ProvidePushGateway,
		ProvideWebhookSender,
		notify.NewService,
		notify.NewHandler,
		wire.Struct(new(Application), "*"),
	)
	return &Application{}, nil
}
