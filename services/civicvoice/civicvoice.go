package main

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/joeshaw/envdecode"
	"github.com/sirupsen/logrus"

	"github.com/KripanshSrivastava/CivicVoice-report/api"
	"github.com/KripanshSrivastava/CivicVoice-report/api/kss"
	"github.com/KripanshSrivastava/CivicVoice-report/authn"
	"github.com/KripanshSrivastava/CivicVoice-report/core/csql"
	"github.com/KripanshSrivastava/CivicVoice-report/core/logger"
)

// Service holds the configuration for this service
//
// use POSTGRES="host=localhost port=5432 user=postgres password=docker dbname=postgres sslmode=disable"
type Service struct {
	Postgres  string `env:"POSTGRES,required" description:"the connection string for the Postgres DB"`
	Port      string `env:"PORT,default=3000" description:"the port to listen on"`
	PublicURL string `env:"PUBLIC_URL,default=http://localhost:3000" description:"the public base URL of this service"`

	AuthURL   string `env:"AUTH_URL,required" description:"the base URL of the managed auth provider"`
	AuthKey   string `env:"AUTH_KEY,required" description:"the anonymous api key of the managed service"`
	JWTSecret string `env:"JWT_SECRET,default=" description:"the HS256 secret of the auth provider's access tokens; empty verifies tokens with a provider round trip"`

	KafkaBrokers string `env:"KAFKA_BROKERS,default=" description:"comma separated kafka brokers for change events"`
	KafkaTopic   string `env:"KAFKA_TOPIC,default=civicvoice-events" description:"the kafka topic for change events"`

	KSSDriver       string `env:"KSS_DRIVER,default=Local" description:"image storage driver: Local, AWSS3 or empty to disable"`
	KSSLocalPath    string `env:"KSS_LOCAL_PATH,default=/tmp/civicvoice-files" description:"base folder of the local image storage"`
	KSSS3Bucket     string `env:"KSS_S3_BUCKET,default=" description:"S3 bucket for image storage"`
	KSSS3Region     string `env:"KSS_S3_REGION,default=eu-central-1" description:"S3 region for image storage"`
	KSSS3AccessID   string `env:"KSS_S3_ACCESS_ID,default=" description:"S3 access id"`
	KSSS3AccessKey  string `env:"KSS_S3_ACCESS_KEY,default=" description:"S3 access key"`
	KSSS3KeyPrefix  string `env:"KSS_S3_KEY_PREFIX,default=civicvoice/" description:"prefix for all S3 keys"`
	LogLevelString  string `env:"LOG_LEVEL,default=info" description:"one of panic, fatal, error, warn, info, debug, trace"`
}

func main() {
	service := &Service{}
	if err := envdecode.Decode(service); err != nil {
		panic(err)
	}

	logLevel, err := logrus.ParseLevel(service.LogLevelString)
	if err != nil {
		panic(err)
	}
	logger.InitLogger(logLevel)

	db := csql.OpenWithSchema(service.Postgres, "civicvoice")
	defer db.Close()

	router := mux.NewRouter()
	logger.AddRequestID(router)

	var driver kss.Driver
	switch kss.DriverType(service.KSSDriver) {
	case kss.DriverTypeLocal:
		publicURL, err := url.Parse(service.PublicURL)
		if err != nil {
			panic(err)
		}
		driver, err = kss.NewLocalFilesystem(router, service.KSSLocalPath, *publicURL, nil)
		if err != nil {
			panic(err)
		}
	case kss.DriverTypeAWSS3:
		driver, err = kss.NewS3(kss.S3Configuration{
			AWSBucketName: service.KSSS3Bucket,
			AWSRegion:     service.KSSS3Region,
			AccessID:      service.KSSS3AccessID,
			AccessKey:     service.KSSS3AccessKey,
			KeyPrefix:     service.KSSS3KeyPrefix,
		})
		if err != nil {
			panic(err)
		}
	case kss.None:
	default:
		panic("unknown KSS driver: " + service.KSSDriver)
	}

	var notifier *api.KafkaNotifier
	if service.KafkaBrokers != "" {
		notifier = api.NewKafkaNotifier(strings.Split(service.KafkaBrokers, ","), service.KafkaTopic)
		defer notifier.Close()
	}

	builder := &api.Builder{
		DB:        db,
		Router:    router,
		Authn:     authn.New(service.AuthURL, service.AuthKey),
		JWTSecret: service.JWTSecret,
		Kss:       driver,
	}
	if notifier != nil {
		builder.Notifier = notifier
	}
	api.New(builder)

	logger.Default().Infoln("listen on port :" + service.Port)
	handler := handlers.RecoveryHandler()(router)
	if err := http.ListenAndServe(":"+service.Port, handler); err != nil {
		logger.Default().Fatalln(err)
	}
}
