// Package config loads the environment-provided settings. The in-process
// transfer path needs only the credential ciphertexts; the remote
// orchestrator additionally needs the EC2 launch settings. Configuration is
// read at transfer time, not at init, so a misconfigured variable surfaces
// as an error on the transfer that needed it.
package config

import (
	"os"

	"github.com/kanisterio/errkit"
)

const (
	// EnvADUsername is the KMS ciphertext of the AD username.
	EnvADUsername = "AD_username"
	// EnvADKey is the KMS ciphertext of the AD password.
	EnvADKey = "AD_key"
	// EnvImageID overrides the machine image for transfer instances.
	EnvImageID = "EC2_IMAGE_ID"
	// EnvInstanceProfile overrides the instance profile for transfer instances.
	EnvInstanceProfile = "EC2_INSTANCE_PROFILE"
	// EnvPEMKey is the EC2 key pair name attached to transfer instances.
	EnvPEMKey = "EC2_PEM_KEY"
	// EnvInstanceType is the EC2 instance size.
	EnvInstanceType = "EC2_INSTANCE_TYPE"
	// EnvSecurityGroup is the security group ID for the instance ENI.
	EnvSecurityGroup = "SECURITY_GROUP"
	// EnvSubnet is the VPC subnet the instance is placed in.
	EnvSubnet = "VPC_SUBNET"
	// EnvTransferHandler names the transfer entry point invoked on the instance.
	EnvTransferHandler = "TRANSFER_HANDLER"
	// EnvLogBucket overrides the bucket receiving instance logs.
	EnvLogBucket = "LOG_BUCKET"
	// EnvEventsTable names the DynamoDB audit table. Optional; auditing is
	// disabled when unset.
	EnvEventsTable = "EVENTS_TABLE"

	// DefaultImageID is the Amazon Linux image transfer instances boot from.
	DefaultImageID = "ami-07cc15c3ba6f8e287"
	// DefaultInstanceProfile scopes the instance role to the transfer workflow.
	DefaultInstanceProfile = "nonprod-dataanalytics-filescheduler-ec2"
	// DefaultLogBucket receives the timestamped instance logs under ec2-log/.
	DefaultLogBucket = "bucket-test"
)

// Credentials holds the KMS ciphertexts of the on-prem credentials. These
// are the only settings an in-process transfer needs; the EC2 launch
// settings are loaded separately so the CLI and the transfer instance do
// not require them.
type Credentials struct {
	EncryptedUsername string
	EncryptedPassword string
}

// Orchestration holds everything needed to launch a transfer instance.
type Orchestration struct {
	EncryptedUsername string
	EncryptedPassword string
	ImageID           string
	InstanceProfile   string
	InstanceType      string
	KeyName           string
	SubnetID          string
	SecurityGroupID   string
	TransferHandler   string
	LogBucket         string
	EventsTable       string
}

// LoadCredentials reads the credential ciphertexts from the environment.
func LoadCredentials() (Credentials, error) {
	c := Credentials{}
	for _, v := range []struct {
		name string
		dst  *string
	}{
		{EnvADUsername, &c.EncryptedUsername},
		{EnvADKey, &c.EncryptedPassword},
	} {
		val, err := requireEnv(v.name)
		if err != nil {
			return Credentials{}, err
		}
		*v.dst = val
	}
	return c, nil
}

// LoadOrchestration reads the orchestration settings from the environment.
// A missing required variable is an error naming the variable.
func LoadOrchestration() (Orchestration, error) {
	o := Orchestration{
		ImageID:         getEnvOrDefault(EnvImageID, DefaultImageID),
		InstanceProfile: getEnvOrDefault(EnvInstanceProfile, DefaultInstanceProfile),
		LogBucket:       getEnvOrDefault(EnvLogBucket, DefaultLogBucket),
		EventsTable:     os.Getenv(EnvEventsTable),
	}
	for _, v := range []struct {
		name string
		dst  *string
	}{
		{EnvADUsername, &o.EncryptedUsername},
		{EnvADKey, &o.EncryptedPassword},
		{EnvPEMKey, &o.KeyName},
		{EnvInstanceType, &o.InstanceType},
		{EnvSecurityGroup, &o.SecurityGroupID},
		{EnvSubnet, &o.SubnetID},
		{EnvTransferHandler, &o.TransferHandler},
	} {
		val, err := requireEnv(v.name)
		if err != nil {
			return Orchestration{}, err
		}
		*v.dst = val
	}
	return o, nil
}

func requireEnv(name string) (string, error) {
	val := os.Getenv(name)
	if val == "" {
		return "", errkit.New("Required environment variable " + name + " is not set")
	}
	return val, nil
}

func getEnvOrDefault(name, def string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return def
}
