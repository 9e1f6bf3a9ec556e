package lambda

import "encoding/json"

// Wire shapes for the Lambda Labs cloud API v1. Responses arrive wrapped in
// an envelope: {"data": ...} on success, {"error": {code, message}} on
// failure.

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *errorBody      `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type InstanceSpecs struct {
	VCPUs      int `json:"vcpus"`
	MemoryGiB  int `json:"memory_gib"`
	StorageGiB int `json:"storage_gib"`
}

type InstanceType struct {
	Name              string        `json:"name"`
	Description       string        `json:"description"`
	PriceCentsPerHour int           `json:"price_cents_per_hour"`
	Specs             InstanceSpecs `json:"specs"`
}

// RegionCapacity is one region entry from regions_with_capacity_available.
// The API signals capacity by listing the region; some responses also carry
// an explicit count.
type RegionCapacity struct {
	Name           string `json:"name"`
	Description    string `json:"description"`
	AvailableCount *int   `json:"available_count,omitempty"`
}

// Available reports whether the region actually has startable capacity. A
// listed region without a count is available; an explicit count must be
// positive. Negative counts are malformed and read as unavailable.
func (r RegionCapacity) Available() bool {
	return r.AvailableCount == nil || *r.AvailableCount > 0
}

// InstanceTypeOffer is one entry of the GET /instance-types response map,
// keyed by instance type name.
type InstanceTypeOffer struct {
	InstanceType        InstanceType     `json:"instance_type"`
	RegionsWithCapacity []RegionCapacity `json:"regions_with_capacity_available"`
}

type Instance struct {
	ID          string   `json:"id"`
	Status      string   `json:"status"`
	IP          string   `json:"ip"`
	SSHKeyNames []string `json:"ssh_key_names"`
}

type launchRequest struct {
	RegionName       string   `json:"region_name"`
	InstanceTypeName string   `json:"instance_type_name"`
	SSHKeyNames      []string `json:"ssh_key_names"`
	Quantity         int      `json:"quantity"`
}

type launchResponse struct {
	InstanceIDs []string `json:"instance_ids"`
}

type terminateRequest struct {
	InstanceIDs []string `json:"instance_ids"`
}

type terminateResponse struct {
	TerminatedInstances []Instance `json:"terminated_instances"`
}
