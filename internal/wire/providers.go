package wire

import (
	"context"
	"log"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
	"gorm.io/gorm"

	"patternpals/internal/common"
	"patternpals/internal/config"
	"patternpals/internal/dbmongo"
	"patternpals/internal/gateway"
	"patternpals/internal/notify"
)

// Application bundles the wired object graph handed to main.
type Application struct {
	Config  *config.Config
	DB      *gorm.DB
	Service *notify.Service
	Handler *notify.Handler
}

// ProvideAnalyticsSink connects the Mongo sample store. Analytics is an
// isolation boundary: when Mongo is disabled or unreachable the engine
// runs without a sink rather than failing to boot.
func ProvideAnalyticsSink(cfg *config.Config) common.AnalyticsSink {
	if !cfg.Mongo.Enabled {
		log.Println("Mongo analytics disabled")
		return nil
	}

	mc, err := dbmongo.NewMongoConnection(cfg)
	if err != nil {
		log.Printf("Mongo analytics unavailable: %v", err)
		return nil
	}

	return dbmongo.NewAnalyticsStorage(mc, cfg.Mongo.Collection)
}

func ProvideFirebaseApp(cfg *config.Config) *firebase.App {
	if !cfg.Firebase.Enabled {
		log.Println("Firebase disabled")
		return nil
	}

	if cfg.Firebase.CredentialsFilePath == "" {
		log.Println("Firebase credentials not provided")
		return nil
	}

	opt := option.WithCredentialsFile(cfg.Firebase.CredentialsFilePath)
	app, err := firebase.NewApp(context.Background(), &firebase.Config{
		ProjectID: cfg.Firebase.ProjectID,
	}, opt)
	if err != nil {
		log.Printf("Firebase initialization failed: %v", err)
		return nil
	}

	return app
}

func ProvideFirebaseMessaging(app *firebase.App) *messaging.Client {
	if app == nil {
		log.Println("Firebase app not available, FCM disabled")
		return nil
	}

	client, err := app.Messaging(context.Background())
	if err != nil {
		log.Printf("Failed to create FCM client: %v", err)
		return nil
	}

	return client
}

func ProvidePushGateway(client *messaging.Client) common.PushGateway {
	if client == nil {
		return nil
	}
	return gateway.NewFCMGateway(client)
}

func ProvideWebhookSender(cfg *config.Config) common.WebhookSender {
	if cfg.Webhook.URL == "" {
		return nil
	}
	return gateway.NewWebhookClient(cfg.Webhook.Secret, cfg.Webhook.TokenTTL, cfg.Webhook.SendTimeout)
}
