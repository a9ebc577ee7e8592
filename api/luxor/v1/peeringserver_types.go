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

// Package v1 contains the luxor.io/v1 API group: the PeeringServer
// custom resource and its owned-object naming contract.
package v1

import (
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

const (
	// PhaseRunning indicates the most recent reconcile succeeded.
	PhaseRunning = "Running"
	// PhaseFailed indicates the most recent reconcile raised a non-conflict error.
	PhaseFailed = "Failed"

	// ConditionReady tracks whether the owned objects currently match spec.
	ConditionReady = "Ready"

	// DefaultPort is used when spec.port is unset.
	DefaultPort = 8080
	// DefaultImage is used when spec.image is unset.
	DefaultImage = "peering-server:latest"
)

// ResourceRequirements mirrors corev1.ResourceRequirements but keeps the CRD's
// wire schema independent of core/v1's full surface (limits/requests strings only).
type ResourceRequirements struct {
	// Requests describes the minimum amount of compute resources required.
	// +optional
	Requests corev1.ResourceList `json:"requests,omitempty"`
	// Limits describes the maximum amount of compute resources allowed.
	// +optional
	Limits corev1.ResourceList `json:"limits,omitempty"`
}

// PeeringServerSpec defines the desired state of a PeeringServer.
type PeeringServerSpec struct {
	// Replicas is the cohort size. Must be non-negative.
	// +kubebuilder:validation:Required
	// +kubebuilder:validation:Minimum=0
	Replicas int32 `json:"replicas"`

	// PingIntervalMillis is the server-side ping cadence in milliseconds. Must be positive.
	// +kubebuilder:validation:Required
	// +kubebuilder:validation:Minimum=1
	PingIntervalMillis int64 `json:"pingInterval"`

	// Port is the HTTP port for both health and ping traffic.
	// +kubebuilder:validation:Minimum=1
	// +kubebuilder:validation:Maximum=65535
	// +optional
	Port int32 `json:"port,omitempty"`

	// Image is the container image reference for the managed server.
	// +optional
	Image string `json:"image,omitempty"`

	// Resources describes the compute resources for the managed server container.
	// +optional
	Resources ResourceRequirements `json:"resources,omitempty"`
}

// PeeringServerStatus defines the observed state of a PeeringServer.
type PeeringServerStatus struct {
	// Replicas is the StatefulSet's observed replica count.
	Replicas int32 `json:"replicas,omitempty"`

	// ReadyReplicas is the StatefulSet's observed ready replica count.
	ReadyReplicas int32 `json:"readyReplicas,omitempty"`

	// Phase summarizes the outcome of the most recent reconcile attempt.
	// +kubebuilder:validation:Enum=Running;Failed
	Phase string `json:"phase,omitempty"`

	// LastUpdated is the RFC3339 timestamp of the most recent status write.
	LastUpdated string `json:"lastUpdated,omitempty"`

	// ObservedGeneration is the spec generation the status was computed from.
	ObservedGeneration int64 `json:"observedGeneration,omitempty"`

	// Conditions holds machine-readable condition history.
	// +optional
	Conditions []metav1.Condition `json:"conditions,omitempty"`
}

// +kubebuilder:object:root=true
// +kubebuilder:subresource:status
// +kubebuilder:printcolumn:name="Phase",type=string,JSONPath=".status.phase"
// +kubebuilder:printcolumn:name="Replicas",type=integer,JSONPath=".status.replicas"
// +kubebuilder:printcolumn:name="Ready",type=integer,JSONPath=".status.readyReplicas"
// +kubebuilder:printcolumn:name="Last Updated",type=string,JSONPath=".status.lastUpdated"
// +kubebuilder:printcolumn:name="Age",type=date,JSONPath=".metadata.creationTimestamp"

// PeeringServer is the Schema for the peeringservers API.
type PeeringServer struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   PeeringServerSpec   `json:"spec,omitempty"`
	Status PeeringServerStatus `json:"status,omitempty"`
}

// +kubebuilder:object:root=true

// PeeringServerList contains a list of PeeringServer.
type PeeringServerList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []PeeringServer `json:"items"`
}

func init() {
	SchemeBuilder.Register(&PeeringServer{}, &PeeringServerList{})
}
