// Package kss stores issue images outside of the database. There are
// two drivers: a local filesystem for development and AWS S3.
package kss

import "time"

// Driver is the interface every image storage driver implements.
type Driver interface {
	GetPreSignedURL(method, key string, expireIn time.Duration) (URL string, err error)
	Delete(key string) error
	DeleteAllWithPrefix(prefix string) error
}

// DriverType selects the image storage driver.
type DriverType string

// DriverTypeLocal is the local filesystem driver
const DriverTypeLocal DriverType = "Local"

// DriverTypeAWSS3 is the AWS S3 driver
const DriverTypeAWSS3 DriverType = "AWSS3"

// None disables image storage
const None DriverType = ""

// Configuration selects and configures the image storage driver.
type Configuration struct {
	DriverType         DriverType
	LocalConfiguration *LocalConfiguration
	S3Configuration    *S3Configuration
}

// LocalConfiguration configures the local filesystem driver.
type LocalConfiguration struct {
	BasePath string
}

// S3Configuration configures the AWS S3 driver.
type S3Configuration struct {
	AWSBucketName string
	AWSRegion     string
	AccessID      string
	AccessKey     string
	KeyPrefix     string
}
