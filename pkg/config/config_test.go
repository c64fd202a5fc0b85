package config_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/dieharders/obrew-go/pkg/config"
)

var _ = Describe("Config", func() {
	var dir string

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
	})

	Describe("defaults", func() {
		It("points at the local backend", func() {
			cfg := config.NewDefaultConfig()

			Expect(cfg.Connection.Protocol).To(Equal("http"))
			Expect(cfg.Connection.Host).To(Equal("localhost"))
			Expect(cfg.Connection.Port).To(Equal(8008))
			Expect(cfg.Client.HealthTimeoutSeconds).To(Equal(5))
		})
	})

	Describe("BaseURL", func() {
		It("assembles the backend origin", func() {
			cfg := config.NewDefaultConfig()
			Expect(cfg.BaseURL()).To(Equal("http://localhost:8008"))
		})

		It("reflects overridden connection settings", func() {
			cfg := config.NewDefaultConfig()
			cfg.Connection.Protocol = "https"
			cfg.Connection.Host = "inference.internal"
			cfg.Connection.Port = 443

			Expect(cfg.BaseURL()).To(Equal("https://inference.internal:443"))
		})
	})

	Describe("Save and Load", func() {
		It("round-trips a config through config.toml", func() {
			cfg := config.NewDefaultConfig()
			cfg.Connection.Host = "10.0.0.5"
			cfg.Connection.Port = 9000
			cfg.Client.Debug = true

			Expect(config.Save(cfg, dir)).To(Succeed())

			loaded, err := config.Load(dir)
			Expect(err).NotTo(HaveOccurred())
			Expect(loaded.Connection.Host).To(Equal("10.0.0.5"))
			Expect(loaded.Connection.Port).To(Equal(9000))
			Expect(loaded.Client.Debug).To(BeTrue())
		})

		It("returns defaults when no file exists", func() {
			loaded, err := config.Load(dir)

			Expect(err).NotTo(HaveOccurred())
			Expect(loaded.BaseURL()).To(Equal("http://localhost:8008"))
		})

		It("fills omitted fields with defaults", func() {
			path := filepath.Join(dir, "config.toml")
			Expect(os.WriteFile(path, []byte("[connection]\nhost = \"remote\"\n"), 0o644)).To(Succeed())

			loaded, err := config.Load(dir)
			Expect(err).NotTo(HaveOccurred())
			Expect(loaded.Connection.Host).To(Equal("remote"))
			Expect(loaded.Connection.Protocol).To(Equal("http"))
			Expect(loaded.Connection.Port).To(Equal(8008))
			Expect(loaded.Client.HealthTimeoutSeconds).To(Equal(5))
		})

		It("rejects malformed TOML", func() {
			path := filepath.Join(dir, "config.toml")
			Expect(os.WriteFile(path, []byte("not [valid toml"), 0o644)).To(Succeed())

			_, err := config.Load(dir)
			Expect(err).To(MatchError(ContainSubstring("parsing config")))
		})
	})
})

var _ = Describe("Viper integration", func() {
	var dir string

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
	})

	It("materializes defaults without a config file", func() {
		v, err := config.InitViper(dir)
		Expect(err).NotTo(HaveOccurred())

		cfg, err := config.FromViper(v)
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.BaseURL()).To(Equal("http://localhost:8008"))
	})

	It("reads values from config.toml", func() {
		path := filepath.Join(dir, "config.toml")
		Expect(os.WriteFile(path, []byte("[connection]\nport = 9999\n"), 0o644)).To(Succeed())

		v, err := config.InitViper(dir)
		Expect(err).NotTo(HaveOccurred())

		cfg, err := config.FromViper(v)
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Connection.Port).To(Equal(9999))
	})

	It("lets environment variables override the file", func() {
		path := filepath.Join(dir, "config.toml")
		Expect(os.WriteFile(path, []byte("[connection]\nhost = \"from-file\"\n"), 0o644)).To(Succeed())

		GinkgoT().Setenv("OBREW_CONNECTION_HOST", "from-env")

		v, err := config.InitViper(dir)
		Expect(err).NotTo(HaveOccurred())

		cfg, err := config.FromViper(v)
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Connection.Host).To(Equal("from-env"))
	})
})
