package proto

import (
	"github.com/DedovMosol/IwoMailClient-sub004/internal/errs"
	"github.com/DedovMosol/IwoMailClient-sub004/internal/wbxml"
)

// ProvisionRequest drives the two-phase policy handshake. Phase one sends
// no key and requests the policy; phase two acknowledges it by echoing the
// temporary key with an acknowledgment status.
type ProvisionRequest struct {
	// PolicyKey is empty in phase one and the temporary key in phase two.
	PolicyKey string

	// AckStatus is the acknowledgment code for phase two (ProvStatusOK
	// for accepted). Zero marks a phase-one request.
	AckStatus int
}

func (r *ProvisionRequest) Name() string { return "Provision" }

func (r *ProvisionRequest) Encode() (*wbxml.Element, error) {
	policy := wbxml.New(PageProvision, ProvPolicy).
		AddText(PageProvision, ProvPolicyType, PolicyType)
	if r.AckStatus != 0 {
		if r.PolicyKey == "" {
			return nil, errs.Protocol("provision", "acknowledgment without a policy key")
		}
		policy.AddText(PageProvision, ProvPolicyKey, r.PolicyKey)
		policy.AddText(PageProvision, ProvStatus, itoa(r.AckStatus))
	}

	return wbxml.New(PageProvision, ProvProvision).
		Add(wbxml.New(PageProvision, ProvPolicies).Add(policy)), nil
}

// ProvisionResponse is the decoded Provision response of either phase.
type ProvisionResponse struct {
	Status       int
	PolicyStatus int
	PolicyKey    string

	// RemoteWipe is set when the server directs the device to wipe.
	// The core reports it as an event; it never wipes anything itself.
	RemoteWipe bool
}

// ParseProvisionResponse reads a Provision response tree.
func ParseProvisionResponse(root *wbxml.Element) (*ProvisionResponse, error) {
	if root == nil || root.Page != PageProvision || root.Tag != ProvProvision {
		return nil, errs.Protocol("provision", "response is not a Provision document")
	}

	resp := &ProvisionResponse{
		Status:     intText(root, PageProvision, ProvStatus),
		RemoteWipe: root.Has(PageProvision, ProvRemoteWipe),
	}

	if policies := root.Child(PageProvision, ProvPolicies); policies != nil {
		if policy := policies.Child(PageProvision, ProvPolicy); policy != nil {
			resp.PolicyStatus = intText(policy, PageProvision, ProvStatus)
			resp.PolicyKey = policy.ChildText(PageProvision, ProvPolicyKey)
		}
	}

	return resp, nil
}
