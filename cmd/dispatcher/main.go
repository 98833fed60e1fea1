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

// Package main is the Lambda entry point for event-triggered transfers.
// The envelope always acknowledges with a success status; a synchronous
// failure is reported in the body, and asynchronous failures on the
// transfer instance are reported through the instance's own log upload.
package main

import (
	"context"
	"net/http"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	awsconfig "github.com/filescheduler/filescheduler/pkg/aws"
	"github.com/filescheduler/filescheduler/pkg/aws/ec2"
	"github.com/filescheduler/filescheduler/pkg/aws/kms"
	"github.com/filescheduler/filescheduler/pkg/config"
	"github.com/filescheduler/filescheduler/pkg/events"
	"github.com/filescheduler/filescheduler/pkg/handler"
	"github.com/filescheduler/filescheduler/pkg/log"
	"github.com/filescheduler/filescheduler/pkg/remote"
)

func main() {
	lambda.Start(handleEvent)
}

func handleEvent(ctx context.Context, ev handler.Event) (handler.Response, error) {
	d, err := newDispatcher(ctx)
	if err != nil {
		return failureResponse(ctx, err), nil
	}
	resp, err := d.Dispatch(ctx, ev)
	if err != nil {
		return failureResponse(ctx, err), nil
	}
	return resp, nil
}

// failureResponse reports a synchronous failure inside a success-status
// envelope, so the trigger (cron rule, queue) never re-drives a transfer
// that might already have had side effects.
func failureResponse(ctx context.Context, err error) handler.Response {
	log.Error().WithContext(ctx).WithError(err).Print("Transfer dispatch failed")
	return handler.Response{
		StatusCode: http.StatusOK,
		Body:       "File transfer failed. " + err.Error(),
	}
}

func newDispatcher(ctx context.Context) (*handler.Dispatcher, error) {
	awsCfg, region := awsconfig.GetConfig()
	prov, err := ec2.NewClient(ctx, awsCfg, region)
	if err != nil {
		return nil, err
	}
	dec, err := kms.NewDecrypter(awsCfg, region)
	if err != nil {
		return nil, err
	}
	d := handler.NewDispatcher(remote.NewOrchestrator(prov, dec))
	if table := os.Getenv(config.EnvEventsTable); table != "" {
		st, err := events.NewDynamoStore(awsCfg, region, table)
		if err != nil {
			return nil, err
		}
		d.Events = st
	}
	return d, nil
}
