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

// Package handler is the event-triggered entry point. It runs in an
// environment with no route to the on-prem network, so every transfer
// touching an on-prem share is delegated to a transient instance; only the
// classification and the launch happen here.
package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/filescheduler/filescheduler/pkg/events"
	"github.com/filescheduler/filescheduler/pkg/field"
	"github.com/filescheduler/filescheduler/pkg/location"
	"github.com/filescheduler/filescheduler/pkg/log"
	"github.com/filescheduler/filescheduler/pkg/remote"
	"github.com/filescheduler/filescheduler/pkg/transfer"
)

// Event is the trigger payload, delivered by a cron rule or a queue
// message.
type Event struct {
	SourceLocation string `json:"source_location"`
	TargetLocation string `json:"target_location"`
}

// Response is the API-Gateway-shaped acknowledgment envelope.
type Response struct {
	StatusCode int    `json:"statusCode"`
	Body       string `json:"body"`
}

// Orchestrator is the remote-delegation collaborator. The production
// implementation is *remote.Orchestrator.
type Orchestrator interface {
	Orchestrate(ctx context.Context, src, tgt location.Location, handler string) (remote.Handle, error)
}

// Dispatcher classifies transfer events and delegates the ones that need
// on-prem access.
type Dispatcher struct {
	orchestrator Orchestrator

	// Events receives one audit record per dispatch. Optional.
	Events events.Store
}

// NewDispatcher returns a Dispatcher delegating through o.
func NewDispatcher(o Orchestrator) *Dispatcher {
	return &Dispatcher{orchestrator: o}
}

// Dispatch classifies both locations and either acknowledges an S3-only
// transfer or launches a transfer instance. The remote leg is
// fire-and-forget: a successful response means the instance was requested,
// not that the copy completed.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) (Response, error) {
	requestID := uuid.NewString()
	ctx = field.Context(ctx, "requestID", requestID)

	req, err := transfer.NewRequest(ev.SourceLocation, ev.TargetLocation)
	if err != nil {
		log.Error().WithContext(ctx).WithError(err).Print("Rejected transfer event")
		return Response{}, err
	}
	strategy := req.Strategy()
	log.Info().WithContext(ctx).Print("Dispatching transfer event", field.M{
		"source":   req.Source.String(),
		"target":   req.Target.String(),
		"strategy": string(strategy),
	})

	if !req.NeedsOnPremAccess() {
		d.append(ctx, events.TransferEvent{
			ID:       requestID,
			Source:   req.Source.String(),
			Target:   req.Target.String(),
			Strategy: string(strategy),
			Outcome:  events.OutcomeNotRequired,
		})
		return Response{
			StatusCode: http.StatusOK,
			Body:       "File transfer started. AWS transfer only - not required.",
		}, nil
	}

	h, err := d.orchestrator.Orchestrate(ctx, req.Source, req.Target, "")
	if err != nil {
		d.append(ctx, events.TransferEvent{
			ID:       requestID,
			Source:   req.Source.String(),
			Target:   req.Target.String(),
			Strategy: string(strategy),
			Outcome:  events.OutcomeFailed,
		})
		return Response{}, err
	}
	d.append(ctx, events.TransferEvent{
		ID:         requestID,
		Source:     req.Source.String(),
		Target:     req.Target.String(),
		Strategy:   string(strategy),
		InstanceID: h.InstanceID,
		Outcome:    events.OutcomeDelegated,
	})
	return Response{
		StatusCode: http.StatusOK,
		Body:       fmt.Sprintf("File transfer started. EC2 file transfer spun up. Instance ID is %s.", h.InstanceID),
	}, nil
}

func (d *Dispatcher) append(ctx context.Context, ev events.TransferEvent) {
	events.AppendBestEffort(ctx, d.Events, ev)
}
