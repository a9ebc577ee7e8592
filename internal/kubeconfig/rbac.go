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

package kubeconfig

import (
	"context"
	"fmt"
	"strings"

	authv1 "k8s.io/api/authorization/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
)

// RequiredPermission names one verb/resource/group the Reconciler depends on
// to converge a PeeringServer, drawn from its +kubebuilder:rbac markers.
type RequiredPermission struct {
	Group    string
	Resource string
	Verb     string
}

// RequiredPermissions lists the permissions the startup self-check probes
// for a given watch namespace: get/list/watch/update on PeeringServers, patch
// on their status, and create/update on the three owned kinds. Reads of the
// owned kinds and the remaining marker verbs are not checked.
func RequiredPermissions() []RequiredPermission {
	return []RequiredPermission{
		{Group: "luxor.io", Resource: "peeringservers", Verb: "get"},
		{Group: "luxor.io", Resource: "peeringservers", Verb: "list"},
		{Group: "luxor.io", Resource: "peeringservers", Verb: "watch"},
		{Group: "luxor.io", Resource: "peeringservers", Verb: "update"},
		{Group: "luxor.io", Resource: "peeringservers/status", Verb: "patch"},
		{Group: "", Resource: "configmaps", Verb: "create"},
		{Group: "", Resource: "configmaps", Verb: "update"},
		{Group: "", Resource: "services", Verb: "create"},
		{Group: "", Resource: "services", Verb: "update"},
		{Group: "apps", Resource: "statefulsets", Verb: "create"},
		{Group: "apps", Resource: "statefulsets", Verb: "update"},
	}
}

// ValidatePermissions self-checks the operator's credentials against every
// perm via SelfSubjectAccessReview, aggregating every denied permission into
// a single error. The Reconciler would otherwise only discover a missing
// permission as a 403 on its first write, surfaced minutes later as a
// Failed PeeringServer; this surfaces it once, at startup.
func ValidatePermissions(ctx context.Context, client kubernetes.Interface, namespace string, perms []RequiredPermission) error {
	var denied []string

	for _, p := range perms {
		review := &authv1.SelfSubjectAccessReview{
			Spec: authv1.SelfSubjectAccessReviewSpec{
				ResourceAttributes: &authv1.ResourceAttributes{
					Namespace: namespace,
					Group:     p.Group,
					Resource:  p.Resource,
					Verb:      p.Verb,
				},
			},
		}

		result, err := client.AuthorizationV1().SelfSubjectAccessReviews().Create(ctx, review, metav1.CreateOptions{})
		if err != nil {
			return fmt.Errorf("check permission %s/%s:%s: %w", p.Group, p.Resource, p.Verb, err)
		}
		if !result.Status.Allowed {
			denied = append(denied, fmt.Sprintf("%s/%s:%s", p.Group, p.Resource, p.Verb))
		}
	}

	if len(denied) > 0 {
		return fmt.Errorf("missing RBAC permissions: %s", strings.Join(denied, ", "))
	}
	return nil
}
