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

// Package controller implements the PeeringServer reconcile loop: the
// translation of a declarative spec into an owned ConfigMap, headless
// Service, and StatefulSet, and the status it reports back.
package controller

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	apiequality "k8s.io/apimachinery/pkg/api/equality"
	"k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/types"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/controller"
	"sigs.k8s.io/controller-runtime/pkg/controller/controllerutil"
	"sigs.k8s.io/controller-runtime/pkg/log"

	luxorv1 "github.com/luxor-io/peering-operator/api/luxor/v1"
)

// MetricsRecorder is the interface the Reconciler uses to report outcomes.
// Kept as an interface (rather than a concrete *metrics.Recorder) so unit
// tests can inject a no-op.
type MetricsRecorder interface {
	RecordReconcile(namespace, name, result string, duration time.Duration)
}

// PeeringServerReconciler reconciles a PeeringServer object.
type PeeringServerReconciler struct {
	client.Client
	Scheme              *runtime.Scheme
	Metrics             MetricsRecorder
	MaxConcurrentRecons int
}

// noopMetricsRecorder satisfies MetricsRecorder when none is configured.
type noopMetricsRecorder struct{}

func (noopMetricsRecorder) RecordReconcile(_, _, _ string, _ time.Duration) {}

// NewPeeringServerReconciler creates a Reconciler with sane defaults,
// mirroring the teacher's NewStatefulSetReconciler constructor shape.
func NewPeeringServerReconciler(c client.Client, scheme *runtime.Scheme) *PeeringServerReconciler {
	return &PeeringServerReconciler{
		Client:              c,
		Scheme:              scheme,
		Metrics:             noopMetricsRecorder{},
		MaxConcurrentRecons: 1,
	}
}

//+kubebuilder:rbac:groups=luxor.io,resources=peeringservers,verbs=get;list;watch;update;patch
//+kubebuilder:rbac:groups=luxor.io,resources=peeringservers/status,verbs=get;update;patch
//+kubebuilder:rbac:groups="",resources=configmaps,verbs=get;list;watch;create;update;patch;delete
//+kubebuilder:rbac:groups="",resources=services,verbs=get;list;watch;create;update;patch;delete
//+kubebuilder:rbac:groups=apps,resources=statefulsets,verbs=get;list;watch;create;update;patch;delete

// Reconcile implements the §4.A algorithm end to end.
func (r *PeeringServerReconciler) Reconcile(ctx context.Context, req ctrl.Request) (ctrl.Result, error) {
	logger := log.FromContext(ctx).WithValues(
		"peeringserver", req.NamespacedName,
		"reconcileID", uuid.New().String()[:8],
	)
	start := time.Now()

	var ps luxorv1.PeeringServer
	if err := r.Get(ctx, req.NamespacedName, &ps); err != nil {
		if errors.IsNotFound(err) {
			logger.Info("PeeringServer not found, assuming deleted")
			return ctrl.Result{}, nil
		}
		logger.Error(err, "failed to get PeeringServer")
		return ctrl.Result{}, err
	}

	result, recErr := r.reconcile(ctx, logger, &ps)

	outcome := "success"
	if recErr != nil {
		outcome = "error"
	}
	r.Metrics.RecordReconcile(ps.Namespace, ps.Name, outcome, time.Since(start))

	return result, recErr
}

// reconcile runs §4.A steps 1-6 for a single PeeringServer.
func (r *PeeringServerReconciler) reconcile(ctx context.Context, logger logrLogger, ps *luxorv1.PeeringServer) (ctrl.Result, error) {
	spec := applyDefaults(ps.Spec)

	if err := validateSpec(spec); err != nil {
		logger.Info("validation failed, marking phase Failed", "reason", err.Error())
		if perr := r.patchStatus(ctx, ps, luxorv1.PhaseFailed, 0, 0, err); perr != nil {
			logger.Error(perr, "failed to patch status after validation error")
		}
		// Validation errors are not retried until the user edits the resource;
		// returning a nil error avoids an immediate workqueue requeue.
		return ctrl.Result{}, nil
	}

	if err := r.reconcileConfigMap(ctx, logger, ps, spec); err != nil {
		return r.handleReconcileError(ctx, logger, ps, err)
	}
	if err := r.reconcileService(ctx, logger, ps, spec); err != nil {
		return r.handleReconcileError(ctx, logger, ps, err)
	}
	if err := r.reconcileStatefulSet(ctx, logger, ps, spec); err != nil {
		return r.handleReconcileError(ctx, logger, ps, err)
	}

	var sts appsv1.StatefulSet
	if err := r.Get(ctx, types.NamespacedName{Name: ps.Name, Namespace: ps.Namespace}, &sts); err != nil {
		return r.handleReconcileError(ctx, logger, ps, err)
	}

	if err := r.patchStatus(ctx, ps, luxorv1.PhaseRunning, sts.Status.Replicas, sts.Status.ReadyReplicas, nil); err != nil {
		// Status patch failures are advisory only (§4.A step 5); log and continue.
		logger.Error(err, "failed to patch status")
	}

	return ctrl.Result{}, nil
}

// handleReconcileError implements the I6/§7 phase decision: conflicts are
// transient and never flip phase to Failed; everything else does.
func (r *PeeringServerReconciler) handleReconcileError(ctx context.Context, logger logrLogger, ps *luxorv1.PeeringServer, err error) (ctrl.Result, error) {
	if errors.IsConflict(err) {
		logger.Info("transient conflict, deferring to next watch event", "error", err.Error())
		return ctrl.Result{}, nil
	}

	logger.Error(err, "reconcile failed")
	if perr := r.patchStatus(ctx, ps, luxorv1.PhaseFailed, 0, 0, err); perr != nil {
		logger.Error(perr, "failed to patch status after reconcile error")
	}
	return ctrl.Result{}, err
}

// reconcileConfigMap applies the read-then-write convergence policy (§4.A
// step 4) to the owned ConfigMap. Data is always fully overwritten; there is
// no merge rule for ConfigMap keys.
func (r *PeeringServerReconciler) reconcileConfigMap(ctx context.Context, logger logrLogger, ps *luxorv1.PeeringServer, spec luxorv1.PeeringServerSpec) error {
	desired, err := desiredConfigMap(ps, spec)
	if err != nil {
		return fmt.Errorf("materialize configmap: %w", err)
	}
	if err := controllerutil.SetControllerReference(ps, desired, r.Scheme); err != nil {
		return fmt.Errorf("set owner reference on configmap: %w", err)
	}

	var existing corev1.ConfigMap
	err = r.Get(ctx, types.NamespacedName{Name: desired.Name, Namespace: desired.Namespace}, &existing)
	switch {
	case errors.IsNotFound(err):
		logger.Info("creating configmap", "name", desired.Name)
		return r.Create(ctx, desired)
	case err != nil:
		return fmt.Errorf("get configmap: %w", err)
	default:
		desired.ResourceVersion = existing.ResourceVersion
		return r.Update(ctx, desired)
	}
}

// reconcileService applies the read-then-write convergence policy to the
// owned headless Service, preserving the immutable clusterIP (§4.A, I5).
func (r *PeeringServerReconciler) reconcileService(ctx context.Context, logger logrLogger, ps *luxorv1.PeeringServer, spec luxorv1.PeeringServerSpec) error {
	desired := desiredService(ps, spec)
	if err := controllerutil.SetControllerReference(ps, desired, r.Scheme); err != nil {
		return fmt.Errorf("set owner reference on service: %w", err)
	}

	var existing corev1.Service
	err := r.Get(ctx, types.NamespacedName{Name: desired.Name, Namespace: desired.Namespace}, &existing)
	switch {
	case errors.IsNotFound(err):
		logger.Info("creating service", "name", desired.Name)
		return r.Create(ctx, desired)
	case err != nil:
		return fmt.Errorf("get service: %w", err)
	default:
		desired.ResourceVersion = existing.ResourceVersion
		desired.Spec.ClusterIP = existing.Spec.ClusterIP
		desired.Spec.ClusterIPs = existing.Spec.ClusterIPs
		return r.Update(ctx, desired)
	}
}

// reconcileStatefulSet applies the read-then-write convergence policy to the
// owned StatefulSet. If a live object's immutable selector/serviceName
// diverge from the desired value (only reachable via an external manual
// edit, since the operator never changes them after creation), the update is
// skipped and a warning logged rather than aborting the whole reconcile —
// see DESIGN.md's Open Question decision.
func (r *PeeringServerReconciler) reconcileStatefulSet(ctx context.Context, logger logrLogger, ps *luxorv1.PeeringServer, spec luxorv1.PeeringServerSpec) error {
	desired := desiredStatefulSet(ps, spec)
	if err := controllerutil.SetControllerReference(ps, desired, r.Scheme); err != nil {
		return fmt.Errorf("set owner reference on statefulset: %w", err)
	}

	var existing appsv1.StatefulSet
	err := r.Get(ctx, types.NamespacedName{Name: desired.Name, Namespace: desired.Namespace}, &existing)
	switch {
	case errors.IsNotFound(err):
		logger.Info("creating statefulset", "name", desired.Name)
		return r.Create(ctx, desired)
	case err != nil:
		return fmt.Errorf("get statefulset: %w", err)
	default:
		if !apiequality.Semantic.DeepEqual(existing.Spec.Selector, desired.Spec.Selector) ||
			existing.Spec.ServiceName != desired.Spec.ServiceName {
			logger.Info("statefulset immutable fields diverge from desired state, skipping update this pass",
				"serviceName", existing.Spec.ServiceName, "desiredServiceName", desired.Spec.ServiceName)
			return nil
		}
		desired.ResourceVersion = existing.ResourceVersion
		return r.Update(ctx, desired)
	}
}

// patchStatus composes and applies a merge-patch to the status subresource
// (§4.A step 5). phase is written as given; PhaseRunning yields a Ready=True
// condition, any other phase a Ready=False condition whose message is
// causeErr's text when causeErr is non-nil.
func (r *PeeringServerReconciler) patchStatus(ctx context.Context, ps *luxorv1.PeeringServer, phase string, replicas, readyReplicas int32, causeErr error) error {
	original := ps.DeepCopy()

	ps.Status.Phase = phase
	ps.Status.Replicas = replicas
	ps.Status.ReadyReplicas = readyReplicas
	ps.Status.ObservedGeneration = ps.Generation
	ps.Status.LastUpdated = time.Now().UTC().Format(time.RFC3339)
	setReadyCondition(ps, phase, causeErr)

	return r.Status().Patch(ctx, ps, client.MergeFrom(original))
}

// SetupWithManager wires the Reconciler into a controller-runtime Manager,
// mirroring the teacher's SetupWithManager/SetupWithManagerNamed pattern.
func (r *PeeringServerReconciler) SetupWithManager(mgr ctrl.Manager) error {
	return ctrl.NewControllerManagedBy(mgr).
		For(&luxorv1.PeeringServer{}).
		Owns(&corev1.ConfigMap{}).
		Owns(&corev1.Service{}).
		Owns(&appsv1.StatefulSet{}).
		WithOptions(controller.Options{MaxConcurrentReconciles: r.maxConcurrentReconciles()}).
		Complete(r)
}

func (r *PeeringServerReconciler) maxConcurrentReconciles() int {
	if r.MaxConcurrentRecons <= 0 {
		return 1
	}
	return r.MaxConcurrentRecons
}

// logrLogger is the minimal surface this package needs from logr.Logger,
// declared locally so desired.go and tests don't have to import logr just to
// pass a logger around.
type logrLogger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(err error, msg string, keysAndValues ...interface{})
}
