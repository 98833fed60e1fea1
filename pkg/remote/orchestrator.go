// Copyright 2023 The FileScheduler Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package remote delegates transfer legs that need on-prem filesystem
// access to a transient EC2 instance. The handoff is one-way: this
// package's contract ends once the instance is successfully requested, and
// completion reporting is the instance's own responsibility.
package remote

import (
	"context"
	"time"

	"github.com/kanisterio/errkit"

	"github.com/filescheduler/filescheduler/pkg/aws/ec2"
	"github.com/filescheduler/filescheduler/pkg/config"
	"github.com/filescheduler/filescheduler/pkg/field"
	"github.com/filescheduler/filescheduler/pkg/location"
	"github.com/filescheduler/filescheduler/pkg/log"
	"github.com/filescheduler/filescheduler/pkg/secrets"
)

// ErrProvision indicates the transfer instance could not be launched. The
// launch is never retried: RunInstances is not idempotent and a blind retry
// could leave two instances copying the same files.
var ErrProvision = errkit.NewSentinelErr("failed to provision transfer instance")

// instanceNamePrefix is the Name-tag prefix for transfer instances.
const instanceNamePrefix = "nonprod-dataanalytics-filescheduler-ec2"

// Provisioner launches a transfer instance and returns its instance ID.
// The production implementation is *ec2.EC2.
type Provisioner interface {
	RunTransferInstance(ctx context.Context, spec ec2.TransferInstanceSpec) (string, error)
}

// Handle identifies a launched transfer instance. The only lifecycle
// transition recorded here is the launch itself; the instance mounts,
// copies, uploads its log and self-terminates without further observation
// by this process.
type Handle struct {
	InstanceID string
	LaunchedAt time.Time
}

// Orchestrator builds bootstrap scripts and launches transfer instances.
type Orchestrator struct {
	provisioner Provisioner
	decrypter   secrets.Decrypter

	// loadConfig and now are replaceable in tests.
	loadConfig func() (config.Orchestration, error)
	now        func() time.Time
}

// NewOrchestrator returns an Orchestrator using the given collaborators.
func NewOrchestrator(p Provisioner, d secrets.Decrypter) *Orchestrator {
	return &Orchestrator{
		provisioner: p,
		decrypter:   d,
		loadConfig:  config.LoadOrchestration,
		now:         time.Now,
	}
}

// Orchestrate renders the bootstrap script for the given transfer and
// launches a self-terminating instance to run it. handler may be empty, in
// which case the configured transfer handler is used.
func (o *Orchestrator) Orchestrate(ctx context.Context, src, tgt location.Location, handler string) (Handle, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return Handle{}, err
	}
	if handler == "" {
		handler = cfg.TransferHandler
	}
	now := o.now()

	// Plaintext credentials live only for the duration of the script
	// rendering below.
	creds, err := secrets.Resolve(ctx, o.decrypter, cfg.EncryptedUsername, cfg.EncryptedPassword)
	if err != nil {
		return Handle{}, err
	}
	defer creds.Zero()

	script, err := NewBootstrapScript(src, tgt, handler, creds, cfg.LogBucket, now)
	if err != nil {
		return Handle{}, err
	}

	spec := ec2.TransferInstanceSpec{
		ImageID:         cfg.ImageID,
		InstanceType:    cfg.InstanceType,
		InstanceProfile: cfg.InstanceProfile,
		KeyName:         cfg.KeyName,
		SubnetID:        cfg.SubnetID,
		SecurityGroupID: cfg.SecurityGroupID,
		Name:            ec2.InstanceName(instanceNamePrefix, now),
		UserData:        script,
	}
	instanceID, err := o.provisioner.RunTransferInstance(ctx, spec)
	if err != nil {
		return Handle{}, errkit.Wrap(ErrProvision, "RunInstances call failed", "cause", err.Error())
	}
	log.Info().WithContext(ctx).Print("Transfer instance launched", field.M{
		"instanceID": instanceID,
		"source":     src.String(),
		"target":     tgt.String(),
	})
	return Handle{InstanceID: instanceID, LaunchedAt: now}, nil
}
