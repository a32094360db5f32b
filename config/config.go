// Package config loads the service-definition document the Multi-Service
// Manager builds its endpoints from (spec section 6). Parsing uses
// encoding/json directly: no library in the reference pack ships a JSON
// parser of its own, and the document's
// shape is simple enough that the standard decoder is the right tool
// rather than a gap in the domain stack.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hakoniwalab/hakoniwa-pdu-rpc/header"
	"github.com/hakoniwalab/hakoniwa-pdu-rpc/rpcerrors"
)

const defaultMetaDataSize = 24

// SidePduSize is one side's base/heap contribution to a service's PDU
// sizing.
type SidePduSize struct {
	BaseSize uint32 `json:"baseSize"`
	HeapSize uint32 `json:"heapSize"`
}

// PduSize is the pduSize block of a service object.
type PduSize struct {
	Client SidePduSize `json:"client"`
	Server SidePduSize `json:"server"`
}

// EndpointRef names a (node, endpoint) pair as referenced by a service's
// server_endpoints entry or a client's client_endpoint block.
type EndpointRef struct {
	NodeID     string `json:"nodeId"`
	EndpointID string `json:"endpointId"`
}

// ClientDef is one entry of a service's clients array.
type ClientDef struct {
	Name              string      `json:"name"`
	RequestChannelID  int         `json:"requestChannelId"`
	ResponseChannelID int         `json:"responseChannelId"`
	ClientEndpoint    EndpointRef `json:"client_endpoint"`
}

// ServiceDef is one entry of the document's services array.
type ServiceDef struct {
	Name            string        `json:"name"`
	PduSize         PduSize       `json:"pduSize"`
	ServerEndpoints []EndpointRef `json:"server_endpoints"`
	Clients         []ClientDef   `json:"clients"`
}

// EndpointConfig is one endpoint declaration under a node in the endpoints
// section: an id plus the transport config path to open it with.
type EndpointConfig struct {
	ID         string `json:"id"`
	ConfigPath string `json:"config_path"`
}

// NodeEndpoints groups a node's endpoint declarations.
type NodeEndpoints struct {
	NodeID    string           `json:"nodeId"`
	Endpoints []EndpointConfig `json:"endpoints"`
}

// Document is the fully parsed service-definition document, with the
// endpoints_config_path indirection already resolved into Endpoints.
type Document struct {
	PduMetaDataSize uint32          `json:"pduMetaDataSize"`
	Services        []ServiceDef    `json:"services"`
	Endpoints       []NodeEndpoints `json:"endpoints"`
}

// rawDocument mirrors Document before the endpoints_config_path
// indirection is resolved.
type rawDocument struct {
	PduMetaDataSize     uint32          `json:"pduMetaDataSize"`
	Services            []ServiceDef    `json:"services"`
	Endpoints           []NodeEndpoints `json:"endpoints"`
	EndpointsConfigPath string          `json:"endpoints_config_path"`
}

// Load reads and parses the service-definition document at path. If the
// document points at its endpoints section indirectly via
// endpoints_config_path, that sibling file is loaded relative to path's
// directory, matching the original loader's parent_abs_path convention.
// A missing file, invalid JSON, or a document with neither endpoints nor
// endpoints_config_path is reported as ErrConfigMalformed.
func Load(path string) (*Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", rpcerrors.ErrConfigMalformed, err)
	}
	var doc rawDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", rpcerrors.ErrConfigMalformed, err)
	}
	if doc.PduMetaDataSize == 0 {
		doc.PduMetaDataSize = defaultMetaDataSize
	}

	if len(doc.Endpoints) == 0 && doc.EndpointsConfigPath != "" {
		epPath := filepath.Join(filepath.Dir(path), doc.EndpointsConfigPath)
		epRaw, err := os.ReadFile(epPath)
		if err != nil {
			return nil, fmt.Errorf("%w: endpoints_config_path %q: %v", rpcerrors.ErrConfigMalformed, doc.EndpointsConfigPath, err)
		}
		var endpoints []NodeEndpoints
		if err := json.Unmarshal(epRaw, &endpoints); err != nil {
			return nil, fmt.Errorf("%w: endpoints_config_path %q: %v", rpcerrors.ErrConfigMalformed, doc.EndpointsConfigPath, err)
		}
		doc.Endpoints = endpoints
	}

	if len(doc.Endpoints) == 0 {
		return nil, fmt.Errorf("%w: document has neither endpoints nor endpoints_config_path", rpcerrors.ErrConfigMalformed)
	}
	if len(doc.Services) == 0 {
		return nil, fmt.Errorf("%w: document declares no services", rpcerrors.ErrConfigMalformed)
	}

	return &Document{
		PduMetaDataSize: doc.PduMetaDataSize,
		Services:        doc.Services,
		Endpoints:       doc.Endpoints,
	}, nil
}

// FindEndpointConfigPath resolves a (nodeId, endpointId) pair to the
// transport config_path an endpoint must be opened with. It returns
// ("", false) if no such entry exists.
func (d *Document) FindEndpointConfigPath(nodeID, endpointID string) (string, bool) {
	for _, node := range d.Endpoints {
		if node.NodeID != nodeID {
			continue
		}
		for _, ep := range node.Endpoints {
			if ep.ID == endpointID {
				return ep.ConfigPath, true
			}
		}
	}
	return "", false
}

// ToServicePduSize converts the document's JSON-shaped PduSize into the
// header package's sizing type.
func (p PduSize) ToServicePduSize() header.ServicePduSize {
	return header.ServicePduSize{
		Client: header.SidePduSize{BaseSize: p.Client.BaseSize, HeapSize: p.Client.HeapSize},
		Server: header.SidePduSize{BaseSize: p.Server.BaseSize, HeapSize: p.Server.HeapSize},
	}
}
