package main

import (
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

func stateCmd(args []string) {
	fs := flag.NewFlagSet("state", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	_ = fs.Parse(args)

	u := strings.TrimRight(strings.TrimSpace(*baseURL), "/") + "/admin/v1/state"
	cl := &http.Client{Timeout: 5 * time.Second}
	resp, err := cl.Get(u)
	if err != nil {
		fmt.Fprintln(os.Stderr, "request:", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	fmt.Println(string(b))
	if resp.StatusCode/100 != 2 {
		os.Exit(1)
	}
}

func snapshotCmd(args []string) {
	fs := flag.NewFlagSet("snapshot", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	name := fs.String("name", "", "snapshot name")
	load := fs.Bool("load", false, "load the snapshot instead of creating it")
	stand := fs.Int("stand", -1, "save (or with -load, restore) only this stand")
	timeout := fs.Duration("timeout", 10*time.Minute, "request timeout")
	_ = fs.Parse(args)

	u, err := adminURL(*baseURL, *name, *load, *stand)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	req, _ := http.NewRequest(http.MethodPost, u, nil)
	cl := &http.Client{Timeout: *timeout}
	resp, err := cl.Do(req)
	if err != nil {
		fmt.Fprintln(os.Stderr, "request:", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	fmt.Println(string(b))
	if resp.StatusCode/100 != 2 {
		os.Exit(1)
	}
}

// adminURL builds the endpoint for a snapshot request. Stand requests use
// the server's stand store and take no name.
func adminURL(base, name string, load bool, stand int) (string, error) {
	base = strings.TrimRight(strings.TrimSpace(base), "/") + "/admin/v1"
	q := url.Values{}
	var path string
	switch {
	case stand >= 0:
		path = "/stand/save"
		if load {
			path = "/stand/load"
		}
		q.Set("stand", fmt.Sprint(stand))
	case name == "":
		return "", fmt.Errorf("missing -name")
	default:
		path = "/snapshot"
		if load {
			path = "/snapshot/load"
		}
		q.Set("name", name)
	}
	return base + path + "?" + q.Encode(), nil
}
