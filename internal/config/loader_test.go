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

package config

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("ConfigurationLoader", func() {
	var (
		tempDir    string
		configFile string
	)

	BeforeEach(func() {
		var err error
		tempDir, err = os.MkdirTemp("", "config-test-*")
		Expect(err).NotTo(HaveOccurred())

		configFile = filepath.Join(tempDir, "config.yaml")
	})

	AfterEach(func() {
		Expect(os.RemoveAll(tempDir)).To(Succeed())
	})

	Describe("DefaultConfiguration", func() {
		It("returns sane defaults", func() {
			cfg := DefaultConfiguration()
			Expect(cfg.Controller.MaxConcurrentReconciles).To(Equal(1))
			Expect(cfg.Kubernetes.QPS).To(BeNumerically(">", 0))
			Expect(cfg.LeaderElection.Enabled).To(BeTrue())
		})
	})

	Describe("LoadFromFile", func() {
		It("is a no-op for an empty path", func() {
			loader := NewConfigurationLoader()
			Expect(loader.LoadFromFile("")).To(Succeed())
		})

		It("errors on a missing file", func() {
			loader := NewConfigurationLoader()
			Expect(loader.LoadFromFile(filepath.Join(tempDir, "missing.yaml"))).NotTo(Succeed())
		})

		It("overrides defaults from YAML", func() {
			content := []byte("controller:\n  namespace: peering-system\n  maxConcurrentReconciles: 4\n")
			Expect(os.WriteFile(configFile, content, 0o644)).To(Succeed())

			loader := NewConfigurationLoader()
			Expect(loader.LoadFromFile(configFile)).To(Succeed())
			Expect(loader.config.Controller.Namespace).To(Equal("peering-system"))
			Expect(loader.config.Controller.MaxConcurrentReconciles).To(Equal(4))
		})
	})

	Describe("LoadFromEnvironment", func() {
		It("overrides the loader's configuration", func() {
			Expect(os.Setenv("PEERING_NAMESPACE", "from-env")).To(Succeed())
			Expect(os.Setenv("PEERING_MAX_CONCURRENT_RECONCILES", "7")).To(Succeed())
			defer func() {
				os.Unsetenv("PEERING_NAMESPACE")
				os.Unsetenv("PEERING_MAX_CONCURRENT_RECONCILES")
			}()

			loader := NewConfigurationLoader()
			Expect(loader.LoadFromEnvironment()).To(Succeed())
			Expect(loader.config.Controller.Namespace).To(Equal("from-env"))
			Expect(loader.config.Controller.MaxConcurrentReconciles).To(Equal(7))
		})

		It("rejects an unparseable value", func() {
			Expect(os.Setenv("PEERING_MAX_CONCURRENT_RECONCILES", "not-a-number")).To(Succeed())
			defer os.Unsetenv("PEERING_MAX_CONCURRENT_RECONCILES")

			loader := NewConfigurationLoader()
			Expect(loader.LoadFromEnvironment()).NotTo(Succeed())
		})
	})

	Describe("LoadConfiguration", func() {
		It("layers file over defaults and environment over file", func() {
			content := []byte("controller:\n  maxConcurrentReconciles: 2\nkubernetes:\n  qps: 10\n")
			Expect(os.WriteFile(configFile, content, 0o644)).To(Succeed())

			Expect(os.Setenv("PEERING_MAX_CONCURRENT_RECONCILES", "5")).To(Succeed())
			defer os.Unsetenv("PEERING_MAX_CONCURRENT_RECONCILES")

			loader := NewConfigurationLoader()
			cfg, err := loader.LoadConfiguration(configFile)
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Controller.MaxConcurrentReconciles).To(Equal(5))
			Expect(cfg.Kubernetes.QPS).To(BeNumerically("==", 10))
		})

		It("fails validation on a non-positive reconcile timeout", func() {
			content := []byte("controller:\n  reconcileTimeout: 0s\n")
			Expect(os.WriteFile(configFile, content, 0o644)).To(Succeed())

			loader := NewConfigurationLoader()
			_, err := loader.LoadConfiguration(configFile)
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("ValidateConfiguration", func() {
		It("rejects a non-positive burst", func() {
			loader := NewConfigurationLoader()
			loader.config.Kubernetes.Burst = 0
			Expect(loader.ValidateConfiguration()).NotTo(Succeed())
		})
	})
})
