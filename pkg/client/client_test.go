package client_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/dieharders/obrew-go/pkg/client"
	"github.com/dieharders/obrew-go/pkg/progress"
)

// newBackendMux returns a mux pre-wired with the handshake and health
// endpoints every connected test needs.
func newBackendMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/services/api", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"success":true,"data":{"textInference":{"endpoint":"/v1/text/inference"},"downloads":{"endpoint":"/v1/downloads"}}}`)
	})
	mux.HandleFunc("/v1/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

func connectedClient(server *httptest.Server) *client.Client {
	cli, err := client.New(client.Config{BaseURL: server.URL})
	Expect(err).NotTo(HaveOccurred())
	Expect(cli.Connect(context.Background())).To(Succeed())
	return cli
}

var _ = Describe("Client", func() {
	Describe("New", func() {
		It("rejects an unparseable base URL", func() {
			_, err := client.New(client.Config{BaseURL: "not a url"})
			Expect(err).To(MatchError(ContainSubstring("invalid base URL")))
		})

		It("starts disconnected", func() {
			cli, err := client.New(client.Config{BaseURL: "http://localhost:8008"})
			Expect(err).NotTo(HaveOccurred())
			Expect(cli.Enabled()).To(BeFalse())
			Expect(cli.Capabilities()).To(BeNil())
		})
	})

	Describe("Connect", func() {
		It("fetches capabilities and enables the client", func() {
			server := httptest.NewServer(newBackendMux())
			defer server.Close()

			cli := connectedClient(server)

			Expect(cli.Enabled()).To(BeTrue())
			Expect(cli.Capabilities()).To(HaveKey("textInference"))
			Expect(cli.Capabilities()).To(HaveKey("downloads"))
		})

		It("fails against an unreachable backend", func() {
			server := httptest.NewServer(newBackendMux())
			server.Close()

			cli, err := client.New(client.Config{BaseURL: server.URL})
			Expect(err).NotTo(HaveOccurred())

			Expect(cli.Connect(context.Background())).NotTo(Succeed())
			Expect(cli.Enabled()).To(BeFalse())
		})

		It("forwards configured headers", func() {
			var gotAuth string
			mux := newBackendMux()
			mux.HandleFunc("/v1/text/installed", func(w http.ResponseWriter, r *http.Request) {
				gotAuth = r.Header.Get("Authorization")
				fmt.Fprint(w, `{"success":true,"data":[]}`)
			})
			server := httptest.NewServer(mux)
			defer server.Close()

			cli, err := client.New(client.Config{
				BaseURL: server.URL,
				Headers: map[string]string{"Authorization": "Bearer token-1"},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(cli.Connect(context.Background())).To(Succeed())

			_, err = cli.InstalledModels(context.Background())
			Expect(err).NotTo(HaveOccurred())
			Expect(gotAuth).To(Equal("Bearer token-1"))
		})
	})

	Describe("connection gating", func() {
		It("rejects operations before the handshake", func() {
			cli, err := client.New(client.Config{BaseURL: "http://localhost:8008"})
			Expect(err).NotTo(HaveOccurred())

			_, err = cli.InstalledModels(context.Background())
			Expect(err).To(MatchError(client.ErrNotConnected))

			_, err = cli.Completion(context.Background(), &client.ChatRequest{Prompt: "hi"})
			Expect(err).To(MatchError(client.ErrNotConnected))

			_, err = cli.SubscribeProgress(context.Background(), "t-1", progress.Callbacks{})
			Expect(err).To(MatchError(client.ErrNotConnected))
		})

		It("rejects operations after Disconnect", func() {
			server := httptest.NewServer(newBackendMux())
			defer server.Close()

			cli := connectedClient(server)
			cli.Disconnect()

			Expect(cli.Enabled()).To(BeFalse())
			Expect(cli.Capabilities()).To(BeNil())

			_, err := cli.InstalledModels(context.Background())
			Expect(err).To(MatchError(client.ErrNotConnected))
		})
	})

	Describe("connection loss detection", func() {
		It("disables the client when the backend goes away", func() {
			server := httptest.NewServer(newBackendMux())

			cli := connectedClient(server)
			server.Close()

			_, err := cli.InstalledModels(context.Background())
			Expect(err).To(HaveOccurred())
			Expect(cli.Enabled()).To(BeFalse())
		})

		It("disables the client when a progress stream dies mid-transfer", func() {
			mux := newBackendMux()
			mux.HandleFunc("/v1/downloads/progress", func(w http.ResponseWriter, r *http.Request) {
				conn, buf, err := w.(http.Hijacker).Hijack()
				Expect(err).NotTo(HaveOccurred())
				defer conn.Close()

				// Advertise more body than is sent, so the reader fails
				// with an unexpected EOF when the connection closes.
				frame := "data: {\"task_id\":\"t-42\",\"status\":\"downloading\",\"primary_progress\":{\"percent\":10,\"status\":\"downloading\"}}\n\n"
				fmt.Fprintf(buf, "HTTP/1.1 200 OK\r\nContent-Type: text/event-stream\r\nContent-Length: %d\r\n\r\n%s", len(frame)+512, frame)
				Expect(buf.Flush()).To(Succeed())
			})
			server := httptest.NewServer(mux)
			defer server.Close()

			cli := connectedClient(server)

			var (
				mu       sync.Mutex
				failures []string
			)
			sub, err := cli.SubscribeProgress(context.Background(), "t-42", progress.Callbacks{
				OnError: func(message string) {
					mu.Lock()
					defer mu.Unlock()
					failures = append(failures, message)
				},
			})
			Expect(err).NotTo(HaveOccurred())

			Eventually(sub.Done(), "2s").Should(BeClosed())
			Expect(failures).To(ConsistOf(ContainSubstring("unexpected EOF")))
			Expect(cli.Enabled()).To(BeFalse())

			_, err = cli.InstalledModels(context.Background())
			Expect(err).To(MatchError(client.ErrNotConnected))
		})

		It("keeps the client enabled after an ordinary request failure", func() {
			mux := newBackendMux()
			mux.HandleFunc("/v1/text/installed", func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "boom", http.StatusInternalServerError)
			})
			server := httptest.NewServer(mux)
			defer server.Close()

			cli := connectedClient(server)

			_, err := cli.InstalledModels(context.Background())

			var respErr *client.ResponseError
			Expect(errors.As(err, &respErr)).To(BeTrue())
			Expect(respErr.StatusCode).To(Equal(http.StatusInternalServerError))
			Expect(cli.Enabled()).To(BeTrue())
		})
	})

	Describe("Health", func() {
		It("succeeds against a live backend without a handshake", func() {
			server := httptest.NewServer(newBackendMux())
			defer server.Close()

			cli, err := client.New(client.Config{BaseURL: server.URL})
			Expect(err).NotTo(HaveOccurred())

			Expect(cli.Health(context.Background(), time.Second)).To(Succeed())
		})

		It("gives up once the timeout token fires", func() {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				<-r.Context().Done()
			}))
			defer server.Close()

			cli, err := client.New(client.Config{BaseURL: server.URL})
			Expect(err).NotTo(HaveOccurred())

			err = cli.Health(context.Background(), 50*time.Millisecond)
			Expect(errors.Is(err, context.DeadlineExceeded)).To(BeTrue())
		})
	})

	Describe("catalogue calls", func() {
		It("unwraps the installed-models envelope", func() {
			mux := newBackendMux()
			mux.HandleFunc("/v1/text/installed", func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, `{"success":true,"data":[{"id":"tiny","name":"Tiny","size_mb":512,"loaded":true}]}`)
			})
			server := httptest.NewServer(mux)
			defer server.Close()

			cli := connectedClient(server)

			models, err := cli.InstalledModels(context.Background())
			Expect(err).NotTo(HaveOccurred())
			Expect(models).To(HaveLen(1))
			Expect(models[0].ID).To(Equal("tiny"))
			Expect(models[0].SizeMB).To(Equal(int64(512)))
			Expect(models[0].Loaded).To(BeTrue())
		})

		It("surfaces the backend's failure message", func() {
			mux := newBackendMux()
			mux.HandleFunc("/v1/text/load", func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, `{"success":false,"message":"model not found"}`)
			})
			server := httptest.NewServer(mux)
			defer server.Close()

			cli := connectedClient(server)

			err := cli.LoadModel(context.Background(), client.LoadModelRequest{ModelID: "ghost"})
			Expect(err).To(MatchError(ContainSubstring("model not found")))
		})
	})

	Describe("downloads", func() {
		It("starts a download and returns the task id", func() {
			mux := newBackendMux()
			mux.HandleFunc("/v1/downloads", func(w http.ResponseWriter, r *http.Request) {
				Expect(r.Method).To(Equal(http.MethodPost))
				fmt.Fprint(w, `{"success":true,"data":{"task_id":"t-42"}}`)
			})
			server := httptest.NewServer(mux)
			defer server.Close()

			cli := connectedClient(server)

			taskID, err := cli.StartDownload(context.Background(), client.DownloadRequest{RepoID: "org/model"})
			Expect(err).NotTo(HaveOccurred())
			Expect(taskID).To(Equal("t-42"))
		})

		It("streams progress to completion", func() {
			mux := newBackendMux()
			mux.HandleFunc("/v1/downloads/progress", func(w http.ResponseWriter, r *http.Request) {
				Expect(r.URL.Query().Get("task_id")).To(Equal("t-42"))
				w.Header().Set("Content-Type", "text/event-stream")
				flusher := w.(http.Flusher)
				fmt.Fprint(w, "data: {\"task_id\":\"t-42\",\"status\":\"downloading\",\"primary_progress\":{\"percent\":50,\"status\":\"downloading\"}}\n\n")
				flusher.Flush()
				fmt.Fprint(w, "data: {\"task_id\":\"t-42\",\"status\":\"completed\",\"file_path\":\"/models/m.gguf\"}\n\n")
				flusher.Flush()
			})
			server := httptest.NewServer(mux)
			defer server.Close()

			cli := connectedClient(server)

			var (
				mu        sync.Mutex
				percents  []float64
				completed []string
			)
			sub, err := cli.SubscribeProgress(context.Background(), "t-42", progress.Callbacks{
				OnProgress: func(rec progress.Record) {
					mu.Lock()
					defer mu.Unlock()
					percents = append(percents, rec.Primary.Percent)
				},
				OnComplete: func(filePath string) {
					mu.Lock()
					defer mu.Unlock()
					completed = append(completed, filePath)
				},
			})
			Expect(err).NotTo(HaveOccurred())

			Eventually(sub.Done(), "2s").Should(BeClosed())
			Expect(percents).To(Equal([]float64{50}))
			Expect(completed).To(Equal([]string{"/models/m.gguf"}))
		})
	})

	Describe("request tracking", func() {
		It("exposes and clears in-flight operation ids", func() {
			server := httptest.NewServer(newBackendMux())
			defer server.Close()

			cli := connectedClient(server)
			Expect(cli.Active()).To(BeEmpty())
		})
	})
})
