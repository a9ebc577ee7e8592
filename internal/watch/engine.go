/*
Copyright 2024 The Spotalis Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package watch implements the explicit list-then-watch-with-reconnect
// contract for PeeringServer events. The primary dispatch path in
// cmd/controller runs on controller-runtime's own cached informer (wired via
// PeeringServerReconciler.SetupWithManager), which already performs an
// equivalent list-then-watch-with-reconnect internally. Engine exists
// alongside it as a standalone, dependency-light implementation of the same
// contract against the raw dynamic client, for environments where running
// the full manager/cache machinery is undesirable (diagnostics, a
// lightweight fallback mode).
package watch

import (
	"context"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	luxorv1 "github.com/luxor-io/peering-operator/api/luxor/v1"
	"github.com/luxor-io/peering-operator/internal/metrics"
	"github.com/luxor-io/peering-operator/internal/ratelimit"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/types"
	apiwatch "k8s.io/apimachinery/pkg/watch"
	"k8s.io/client-go/dynamic"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/reconcile"
)

// peeringServerGVR identifies the watched resource type.
var peeringServerGVR = schema.GroupVersionResource{
	Group:    luxorv1.GroupVersion.Group,
	Version:  luxorv1.GroupVersion.Version,
	Resource: "peeringservers",
}

// BackoffConfig bounds the delay between reconnect attempts.
type BackoffConfig struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
}

// DefaultBackoffConfig applies the initial-5s, exponential, capped policy.
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{Initial: 5 * time.Second, Max: 5 * time.Minute, Multiplier: 2.0}
}

func (b BackoffConfig) next(current time.Duration) time.Duration {
	next := time.Duration(float64(current) * b.Multiplier)
	if next > b.Max {
		return b.Max
	}
	if next < b.Initial {
		return b.Initial
	}
	return next
}

// Engine performs an initial full list sync followed by an indefinitely
// reconnecting watch, dispatching every observed object to Dispatcher.
type Engine struct {
	Client     dynamic.Interface
	Namespace  string
	Dispatcher reconcile.Reconciler
	Backoff    BackoffConfig
	Limiter    *ratelimit.Limiter
	Log        logr.Logger
}

// New constructs an Engine with the default backoff policy. Limiter is set
// to ratelimit.DefaultConfig, bounding how fast a relist/rewatch cycle can
// repeat during a reconnect storm — a distinct concern from the underlying
// REST client's own QPS/Burst, which governs individual HTTP calls rather
// than the cadence of this loop's list-then-watch cycles.
func New(client dynamic.Interface, namespace string, dispatcher reconcile.Reconciler, log logr.Logger) *Engine {
	return &Engine{
		Client:     client,
		Namespace:  namespace,
		Dispatcher: dispatcher,
		Backoff:    DefaultBackoffConfig(),
		Limiter:    ratelimit.New(nil),
		Log:        log,
	}
}

// RunWithReconnect runs the explicit list-then-watch-with-reconnect contract
// against a raw dynamic client. It exists alongside the cached-manager path
// (PeeringServerReconciler.SetupWithManager) for operators run without the
// full manager/informer machinery — a lightweight diagnostics or fallback
// mode that still converges every observed PeeringServer.
func RunWithReconnect(ctx context.Context, client dynamic.Interface, namespace string, dispatcher reconcile.Reconciler, log logr.Logger) error {
	return New(client, namespace, dispatcher, log).Run(ctx)
}

// Run blocks until ctx is cancelled, reconnecting on every stream failure.
func (e *Engine) Run(ctx context.Context) error {
	delay := e.Backoff.Initial

	for {
		err := e.runOnce(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		reason := classifyReconnectReason(err)
		metrics.RecordWatchReconnect(reason)
		e.Log.Info("watch stream ended, reconnecting", "reason", reason, "backoff", delay)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		delay = e.Backoff.next(delay)
	}
}

// runOnce performs one list-then-watch cycle. It returns nil only when ctx
// is cancelled; any other return is a reason to reconnect.
func (e *Engine) runOnce(ctx context.Context) error {
	if err := e.Limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	resourceClient := e.Client.Resource(peeringServerGVR).Namespace(e.Namespace)

	list, err := resourceClient.List(ctx, metav1.ListOptions{})
	if err != nil {
		return fmt.Errorf("initial list: %w", err)
	}

	for i := range list.Items {
		e.dispatch(ctx, &list.Items[i])
	}

	watcher, err := resourceClient.Watch(ctx, metav1.ListOptions{ResourceVersion: list.GetResourceVersion()})
	if err != nil {
		return fmt.Errorf("open watch: %w", err)
	}
	defer watcher.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.ResultChan():
			if !ok {
				return fmt.Errorf("watch channel closed")
			}
			if event.Type == apiwatch.Error {
				return fmt.Errorf("watch stream error event: %v", event.Object)
			}
			obj, ok := event.Object.(*unstructured.Unstructured)
			if !ok {
				continue
			}
			e.dispatch(ctx, obj)
		}
	}
}

func (e *Engine) dispatch(ctx context.Context, obj *unstructured.Unstructured) {
	key := types.NamespacedName{Namespace: obj.GetNamespace(), Name: obj.GetName()}
	if _, err := e.Dispatcher.Reconcile(ctx, ctrl.Request{NamespacedName: key}); err != nil {
		e.Log.Error(err, "dispatch failed", "peeringserver", key)
	}
}

func classifyReconnectReason(err error) string {
	if err == nil {
		return "clean"
	}
	return "disconnected"
}
