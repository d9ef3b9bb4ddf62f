// Package vcenter implements the vSphere-style collector. It talks to
// the vCenter Automation REST API and maps managed objects into
// discovered assets.
package vcenter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Managed object records as returned by the inventory API. Identifier
// fields are kept raw here; normalization happens in the identity
// resolver, not the collector.

type VirtualMachine struct {
	Moid         string   `json:"moid"`
	Name         string   `json:"name"`
	InstanceUUID string   `json:"instance_uuid"`
	BiosUUID     string   `json:"bios_uuid"`
	PowerState   string   `json:"power_state"`
	GuestOS      string   `json:"guest_os"`
	CPUCount     int      `json:"cpu_count"`
	MemoryMB     int      `json:"memory_mb"`
	DiskGB       int      `json:"disk_gb"`
	IPAddresses  []string `json:"ip_addresses"`

	HostMoid       string   `json:"host_moid"`
	DatastoreMoids []string `json:"datastore_moids"`
	NetworkMoids   []string `json:"network_moids"`
}

type HostSystem struct {
	Moid         string `json:"moid"`
	Name         string `json:"name"`
	SerialNumber string `json:"serial_number"`
	UUID         string `json:"uuid"`
	PowerState   string `json:"power_state"`
	CPUCount     int    `json:"cpu_count"`
	MemoryMB     int    `json:"memory_mb"`
	ClusterMoid  string `json:"cluster_moid"`
}

type Cluster struct {
	Moid string `json:"moid"`
	Name string `json:"name"`
}

type Datastore struct {
	Moid       string `json:"moid"`
	Name       string `json:"name"`
	CapacityGB int    `json:"capacity_gb"`
	FreeGB     int    `json:"free_gb"`
}

type Network struct {
	Moid string `json:"moid"`
	Name string `json:"name"`
}

// API is the slice of the vCenter inventory surface the collector
// needs. An interface so tests and the simulator inject fakes, same as
// the per-service client interfaces in the AWS plugin this package is
// modeled on.
type API interface {
	Login(ctx context.Context) error
	Logout(ctx context.Context) error
	VirtualMachines(ctx context.Context) ([]VirtualMachine, error)
	Hosts(ctx context.Context) ([]HostSystem, error)
	Clusters(ctx context.Context) ([]Cluster, error)
	Datastores(ctx context.Context) ([]Datastore, error)
	Networks(ctx context.Context) ([]Network, error)
}

// restClient is the production API implementation over HTTP.
type restClient struct {
	base     string
	username string
	password string
	http     *http.Client

	session string
}

func newRESTClient(host string, port int, username, password string, insecure bool) *restClient {
	scheme := "https"
	if insecure {
		scheme = "http"
	}
	return &restClient{
		base:     fmt.Sprintf("%s://%s:%d", scheme, host, port),
		username: username,
		password: password,
		http:     &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *restClient) Login(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/api/session", nil)
	if err != nil {
		return err
	}
	req.SetBasicAuth(c.username, c.password)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusUnauthorized {
		return &apiError{status: resp.StatusCode, msg: "authentication failed"}
	}
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return &apiError{status: resp.StatusCode, msg: "unexpected status creating session"}
	}
	if err := json.NewDecoder(resp.Body).Decode(&c.session); err != nil {
		return fmt.Errorf("decode session token: %w", err)
	}
	return nil
}

func (c *restClient) Logout(ctx context.Context) error {
	if c.session == "" {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.base+"/api/session", nil)
	if err != nil {
		return err
	}
	req.Header.Set("vmware-api-session-id", c.session)
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	_ = resp.Body.Close()
	c.session = ""
	return nil
}

func (c *restClient) VirtualMachines(ctx context.Context) ([]VirtualMachine, error) {
	var out []VirtualMachine
	return out, c.get(ctx, "/api/vcenter/vm", &out)
}

func (c *restClient) Hosts(ctx context.Context) ([]HostSystem, error) {
	var out []HostSystem
	return out, c.get(ctx, "/api/vcenter/host", &out)
}

func (c *restClient) Clusters(ctx context.Context) ([]Cluster, error) {
	var out []Cluster
	return out, c.get(ctx, "/api/vcenter/cluster", &out)
}

func (c *restClient) Datastores(ctx context.Context) ([]Datastore, error) {
	var out []Datastore
	return out, c.get(ctx, "/api/vcenter/datastore", &out)
}

func (c *restClient) Networks(ctx context.Context) ([]Network, error) {
	var out []Network
	return out, c.get(ctx, "/api/vcenter/network", &out)
}

func (c *restClient) get(ctx context.Context, path string, into any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("vmware-api-session-id", c.session)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return &apiError{status: resp.StatusCode, msg: "GET " + path}
	}
	if err := json.NewDecoder(resp.Body).Decode(into); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// apiError carries the HTTP status so retry logic can tell transient
// faults (5xx, 429) from permanent ones (auth, bad request).
type apiError struct {
	status int
	msg    string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("%s: status %d", e.msg, e.status)
}

func (e *apiError) transient() bool {
	return e.status == http.StatusTooManyRequests || e.status >= 500
}
