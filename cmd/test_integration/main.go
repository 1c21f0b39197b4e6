// Command test_integration uploads a small document to a running server and
// polls its status until the pipeline finishes.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"time"
)

const sample = `Docker is a container platform written in Go.
Kubernetes orchestrates Docker containers and is also written in Go.
Google created Go and donated Kubernetes to the Cloud Native Computing Foundation.`

func main() {
	baseURL := os.Getenv("DOCGRAPH_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	fmt.Println("1. Checking health...")
	if _, err := request(http.MethodGet, baseURL+"/health", nil, ""); err != nil {
		fail("health", err)
	}

	fmt.Println("2. Uploading document...")
	body, contentType, err := multipartBody("sample.txt", sample)
	if err != nil {
		fail("build upload", err)
	}
	resp, err := request(http.MethodPost, baseURL+"/documents", body, contentType)
	if err != nil {
		fail("upload", err)
	}
	var accepted struct {
		DocumentID string `json:"document_id"`
	}
	if err := json.Unmarshal(resp, &accepted); err != nil || accepted.DocumentID == "" {
		fail("upload response", fmt.Errorf("unexpected body %s", resp))
	}
	fmt.Println("PASSED: upload, document", accepted.DocumentID)

	fmt.Println("3. Waiting for the pipeline...")
	deadline := time.Now().Add(5 * time.Minute)
	for time.Now().Before(deadline) {
		resp, err := request(http.MethodGet, baseURL+"/documents/"+accepted.DocumentID, nil, "")
		if err != nil {
			fail("status", err)
		}
		var st struct {
			Status string `json:"status"`
			Phase  string `json:"phase"`
			Error  string `json:"error"`
			Nodes  int    `json:"nodes"`
			Edges  int    `json:"edges"`
		}
		if err := json.Unmarshal(resp, &st); err != nil {
			fail("status response", err)
		}
		switch st.Status {
		case "completed":
			fmt.Printf("PASSED: %d nodes, %d edges\n", st.Nodes, st.Edges)
			if st.Nodes < 2 || st.Edges < 1 {
				fail("graph", fmt.Errorf("expected at least 2 nodes and 1 edge"))
			}
			return
		case "failed":
			fail("pipeline", fmt.Errorf("%s", st.Error))
		}
		fmt.Println("   phase:", st.Phase)
		time.Sleep(2 * time.Second)
	}
	fail("pipeline", fmt.Errorf("timed out"))
}

func multipartBody(filename, content string) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, "", err
	}
	if _, err := io.WriteString(fw, content); err != nil {
		return nil, "", err
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return &buf, mw.FormDataContentType(), nil
}

func request(method, url string, body io.Reader, contentType string) ([]byte, error) {
	req, err := http.NewRequest(method, url, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := (&http.Client{Timeout: 30 * time.Second}).Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, data)
	}
	return data, nil
}

func fail(step string, err error) {
	fmt.Printf("FAILED: %s: %v\n", step, err)
	os.Exit(1)
}
