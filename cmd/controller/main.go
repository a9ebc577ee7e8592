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

package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-logr/logr"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/runtime"
	utilruntime "k8s.io/apimachinery/pkg/util/runtime"
	"k8s.io/client-go/dynamic"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	"k8s.io/klog/v2"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/cache"
	ctrlclient "sigs.k8s.io/controller-runtime/pkg/client"
	ctrlmetrics "sigs.k8s.io/controller-runtime/pkg/metrics/server"

	luxorv1 "github.com/luxor-io/peering-operator/api/luxor/v1"
	"github.com/luxor-io/peering-operator/internal/config"
	"github.com/luxor-io/peering-operator/internal/controller"
	"github.com/luxor-io/peering-operator/internal/kubeconfig"
	"github.com/luxor-io/peering-operator/internal/logging"
	"github.com/luxor-io/peering-operator/internal/metrics"
	"github.com/luxor-io/peering-operator/internal/watch"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

var scheme = runtime.NewScheme()

func init() {
	utilruntime.Must(clientgoscheme.AddToScheme(scheme))
	utilruntime.Must(corev1.AddToScheme(scheme))
	utilruntime.Must(appsv1.AddToScheme(scheme))
	utilruntime.Must(luxorv1.AddToScheme(scheme))
}

func main() {
	var (
		configFile           = flag.String("config", "", "Optional YAML configuration file. Flags below override its values.")
		metricsAddr          = flag.String("metrics-bind-address", ":8080", "The address the metric endpoint binds to.")
		probeAddr            = flag.String("health-probe-bind-address", ":8081", "The address the probe endpoint binds to.")
		enableLeaderElection = flag.Bool("leader-elect", true, "Enable leader election for controller manager.")
		leaderElectionID     = flag.String("leader-election-id", "peering-operator-leader", "The name of the leader election configmap.")
		namespace            = flag.String("namespace", "", "Restrict the watch to a single namespace. Empty watches all namespaces.")
		maxConcurrent        = flag.Int("max-concurrent-reconciles", 1, "Maximum number of concurrent reconciles.")
		syncPeriod           = flag.Duration("sync-period", 10*time.Hour, "Minimum frequency the controller-runtime cache resyncs at.")
		rawWatchFallback     = flag.Bool("raw-watch-fallback", false, "Bypass the manager's cached informer and dispatch reconciles from a raw list-then-watch-with-reconnect loop. Diagnostics/fallback only.")
		showVersion          = flag.Bool("version", false, "Show version information and exit.")
	)

	flag.Parse()

	if *showVersion {
		fmt.Printf("peering-operator\nVersion: %s\nCommit: %s\nBuild Date: %s\n", version, commit, buildDate)
		os.Exit(0)
	}

	cfgLoader := config.NewConfigurationLoader()
	cfg, err := cfgLoader.LoadConfiguration(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	explicit := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	if !explicit["namespace"] {
		*namespace = cfg.Controller.Namespace
	}
	if !explicit["max-concurrent-reconciles"] {
		*maxConcurrent = cfg.Controller.MaxConcurrentReconciles
	}
	if !explicit["leader-elect"] {
		*enableLeaderElection = cfg.LeaderElection.Enabled
	}
	if !explicit["leader-election-id"] {
		*leaderElectionID = cfg.LeaderElection.ID
	}
	if !explicit["metrics-bind-address"] {
		*metricsAddr = cfg.Metrics.BindAddress
	}
	if !explicit["health-probe-bind-address"] {
		*probeAddr = cfg.Metrics.HealthBindAddress
	}

	logger := logging.FromEnv()
	ctrl.SetLogger(logger)
	klog.SetLogger(logger) // routes client-go's internal logging through the same logr sink
	setupLog := logger.WithName("setup")

	setupLog.Info("starting peering-operator",
		"version", version,
		"commit", commit,
		"namespace", *namespace,
		"leader-election", *enableLeaderElection,
	)

	kubeCfg := &kubeconfig.Config{
		Path:      cfg.Kubernetes.Kubeconfig,
		QPS:       cfg.Kubernetes.QPS,
		Burst:     cfg.Kubernetes.Burst,
		Timeout:   cfg.Kubernetes.Timeout,
		UserAgent: "peering-operator",
	}

	if clientset, err := kubeconfig.NewClientset(kubeCfg); err != nil {
		setupLog.Error(err, "unable to build clientset for RBAC self-check, skipping")
	} else if err := kubeconfig.ValidatePermissions(context.Background(), clientset, *namespace, kubeconfig.RequiredPermissions()); err != nil {
		setupLog.Error(err, "RBAC self-check failed, continuing: the Reconciler will surface the same denial per object")
	}

	mgrOpts := ctrl.Options{
		Scheme:                 scheme,
		Metrics:                ctrlmetrics.Options{BindAddress: *metricsAddr},
		HealthProbeBindAddress: *probeAddr,
		LeaderElection:         *enableLeaderElection,
		LeaderElectionID:       *leaderElectionID,
		Cache:                  cache.Options{SyncPeriod: syncPeriod},
	}

	if *namespace != "" {
		mgrOpts.Cache.DefaultNamespaces = map[string]cache.Config{
			*namespace: {},
		}
	}

	if *rawWatchFallback {
		runRawWatchFallback(logger, setupLog, kubeCfg, *namespace, *maxConcurrent)
		return
	}

	restConfig, err := kubeconfig.Resolve(kubeCfg)
	if err != nil {
		setupLog.Error(err, "unable to resolve cluster credentials")
		os.Exit(1)
	}

	mgr, err := ctrl.NewManager(restConfig, mgrOpts)
	if err != nil {
		setupLog.Error(err, "unable to start manager")
		os.Exit(1)
	}

	reconciler := controller.NewPeeringServerReconciler(mgr.GetClient(), mgr.GetScheme())
	reconciler.Metrics = metrics.NewRecorder()
	reconciler.MaxConcurrentRecons = *maxConcurrent

	if err := reconciler.SetupWithManager(mgr); err != nil {
		setupLog.Error(err, "unable to create controller", "controller", "PeeringServer")
		os.Exit(1)
	}

	if err := mgr.AddHealthzCheck("healthz", healthz); err != nil {
		setupLog.Error(err, "unable to set up health check")
		os.Exit(1)
	}
	if err := mgr.AddReadyzCheck("readyz", healthz); err != nil {
		setupLog.Error(err, "unable to set up ready check")
		os.Exit(1)
	}

	setupLog.Info("starting manager")
	if err := mgr.Start(ctrl.SetupSignalHandler()); err != nil {
		setupLog.Error(err, "problem running manager")
		os.Exit(1)
	}
}

// runRawWatchFallback bypasses the manager's cached informer entirely,
// dispatching reconciles from the Watch Engine's explicit
// list-then-watch-with-reconnect loop against an uncached client. Intended
// for diagnostics or environments where running the full manager/cache
// machinery is undesirable.
func runRawWatchFallback(logger, setupLog logr.Logger, kubeCfg *kubeconfig.Config, namespace string, maxConcurrent int) {
	restConfig, err := kubeconfig.Resolve(kubeCfg)
	if err != nil {
		setupLog.Error(err, "unable to resolve cluster credentials")
		os.Exit(1)
	}

	c, err := ctrlclient.New(restConfig, ctrlclient.Options{Scheme: scheme})
	if err != nil {
		setupLog.Error(err, "unable to build uncached client")
		os.Exit(1)
	}

	dynClient, err := dynamic.NewForConfig(restConfig)
	if err != nil {
		setupLog.Error(err, "unable to build dynamic client")
		os.Exit(1)
	}

	reconciler := controller.NewPeeringServerReconciler(c, scheme)
	reconciler.Metrics = metrics.NewRecorder()
	reconciler.MaxConcurrentRecons = maxConcurrent

	setupLog.Info("starting raw watch fallback", "namespace", namespace)
	if err := watch.RunWithReconnect(ctrl.SetupSignalHandler(), dynClient, namespace, reconciler, logger); err != nil {
		setupLog.Error(err, "raw watch fallback terminated")
		os.Exit(1)
	}
}

func healthz(_ *http.Request) error { return nil }
