/*
Package httpapi is mlsharness's HTTP surface: a thin gorilla/mux
demonstrator of the group-security core's commit-application pipeline,
standing in for the gRPC interop harness named in SPEC_FULL.md §6. It
carries no wire codec — every request/response field is JSON, not the
RFC 9420 binary encoding — and holds group state in memory, refcache,
and pgstore rather than implementing a real distribution service.
*/
package httpapi

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/kindlyrobotics/nochat-mls/cmd/mlsharness/internal/refcache"
	"github.com/kindlyrobotics/nochat-mls/group"
	"github.com/kindlyrobotics/nochat-mls/leafnode"
	"github.com/kindlyrobotics/nochat-mls/proposal"
	"github.com/kindlyrobotics/nochat-mls/proposalfilter"
	"github.com/kindlyrobotics/nochat-mls/ratchettree"
)

// Server wires the Registry and proposal refcache to HTTP routes.
type Server struct {
	registry *Registry
	cache    *refcache.Cache
	log      *logrus.Logger
}

// NewServer constructs a Server ready to Router().
func NewServer(registry *Registry, cache *refcache.Cache, log *logrus.Logger) *Server {
	return &Server{registry: registry, cache: cache, log: log}
}

// Router builds the mux.Router exposing every mlsharness endpoint.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/groups", s.handleCreateGroup).Methods(http.MethodPost)
	r.HandleFunc("/groups/{id}/propose", s.handlePropose).Methods(http.MethodPost)
	r.HandleFunc("/groups/{id}/commit", s.handleCommit).Methods(http.MethodPost)
	r.HandleFunc("/groups/{id}/external-commit", s.handleExternalCommit).Methods(http.MethodPost)
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type createGroupRequest struct {
	GroupID string    `json:"group_id,omitempty"` // hex; server-assigned via uuid if omitted
	Creator memberDTO `json:"creator"`
}

type createGroupResponse struct {
	GroupID string `json:"group_id"`
	groupStateDTO
}

func (s *Server) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	var req createGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var groupID []byte
	if req.GroupID == "" {
		id := uuid.New()
		groupID = id[:]
		req.GroupID = hex.EncodeToString(groupID)
	} else {
		decoded, err := hex.DecodeString(req.GroupID)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		groupID = decoded
	}

	leaf, err := req.Creator.toLeafNode(leafnode.SourceCommit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	tree := ratchettree.Derive(leaf)
	s.registry.Create(req.GroupID, groupID, tree)

	s.log.WithField("group_id", req.GroupID).Info("group created")
	writeJSON(w, http.StatusCreated, createGroupResponse{GroupID: req.GroupID, groupStateDTO: groupStateDTO{MemberCount: 1}})
}

type proposeRequest struct {
	SenderIndex uint32      `json:"sender_index"`
	Proposal    proposalDTO `json:"proposal"`
}

type proposeResponse struct {
	Ref string `json:"ref"` // hex
}

func (s *Server) handlePropose(w http.ResponseWriter, r *http.Request) {
	groupIDHex := mux.Vars(r)["id"]
	_, ok := s.registry.Get(groupIDHex)
	if !ok {
		writeError(w, http.StatusNotFound, errGroupNotFound(groupIDHex))
		return
	}

	var req proposeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	p, err := req.Proposal.toProposal()
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	suiteHash := s.registry.suite.Hash

	encoded, err := json.Marshal(req)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	ref := suiteHash(encoded)

	info := proposal.Info{
		Proposal: p,
		Sender:   proposal.Sender{Kind: proposal.SenderMember, Index: req.SenderIndex},
		Source:   proposal.SourceByRef,
		Ref:      ref,
	}
	payload, err := json.Marshal(info)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if err := s.cache.Put(r.Context(), ref, payload); err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}

	s.log.WithFields(logrus.Fields{"group_id": groupIDHex, "ref": hex.EncodeToString(ref)}).Info("proposal cached")
	writeJSON(w, http.StatusCreated, proposeResponse{Ref: hex.EncodeToString(ref)})
}

type commitRequest struct {
	SenderIndex  uint32      `json:"sender_index"`
	ProposalRefs []string    `json:"proposal_refs"` // hex
	Proposals    []proposalDTO `json:"proposals"`   // inline, by value
}

func (s *Server) handleCommit(w http.ResponseWriter, r *http.Request) {
	groupIDHex := mux.Vars(r)["id"]
	sess, ok := s.registry.Get(groupIDHex)
	if !ok {
		writeError(w, http.StatusNotFound, errGroupNotFound(groupIDHex))
		return
	}

	var req commitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	bundle := proposal.NewBundle()
	ctx := r.Context()
	for _, refHex := range req.ProposalRefs {
		ref, err := hex.DecodeString(refHex)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		raw, found, err := s.cache.Get(ctx, ref)
		if err != nil {
			writeError(w, http.StatusBadGateway, err)
			return
		}
		if !found {
			writeError(w, http.StatusBadRequest, errProposalRefNotFound(refHex))
			return
		}
		var info proposal.Info
		if err := json.Unmarshal(raw, &info); err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		bundle.Add(info)
	}
	for _, pd := range req.Proposals {
		p, err := pd.toProposal()
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		bundle.Add(proposal.Info{
			Proposal: p,
			Sender:   proposal.Sender{Kind: proposal.SenderMember, Index: pd.SenderIndex},
			Source:   proposal.SourceByValue,
		})
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	applier := s.registry.applier(sess, nil)
	state, err := applier.ApplyProposals(ctx, proposalfilter.FailInvalidProposal{}, proposal.Sender{Kind: proposal.SenderMember, Index: req.SenderIndex}, bundle, nil)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}

	sess.tree = state.Tree
	sess.ctx.Epoch++

	for _, ref := range req.ProposalRefs {
		if decoded, err := hex.DecodeString(ref); err == nil {
			_ = s.cache.Delete(ctx, decoded)
		}
	}

	s.log.WithFields(logrus.Fields{"group_id": groupIDHex, "epoch": sess.ctx.Epoch}).Info("commit applied")
	writeJSON(w, http.StatusOK, stateDTOFrom(state))
}

type externalCommitRequest struct {
	Joiner    memberDTO `json:"joiner"`
	KEMOutput string    `json:"kem_output"` // base64
	RemoveIndex *uint32 `json:"remove_index,omitempty"`
}

func (s *Server) handleExternalCommit(w http.ResponseWriter, r *http.Request) {
	groupIDHex := mux.Vars(r)["id"]
	sess, ok := s.registry.Get(groupIDHex)
	if !ok {
		writeError(w, http.StatusNotFound, errGroupNotFound(groupIDHex))
		return
	}

	var req externalCommitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	joinerLeaf, err := req.Joiner.toLeafNode(leafnode.SourceCommit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	kem, err := base64.StdEncoding.DecodeString(req.KEMOutput)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	bundle := proposal.NewBundle()
	bundle.Add(proposal.Info{
		Proposal: proposal.Proposal{Type: proposal.TypeExternalInit, ExternalInit: &proposal.ExternalInit{KEMOutput: kem}},
		Sender:   proposal.Sender{Kind: proposal.SenderNewMemberCommit},
		Source:   proposal.SourceByValue,
	})
	if req.RemoveIndex != nil {
		bundle.Add(proposal.Info{
			Proposal: proposal.Proposal{Type: proposal.TypeRemove, Remove: &proposal.Remove{RemovedIndex: *req.RemoveIndex}},
			Sender:   proposal.Sender{Kind: proposal.SenderNewMemberCommit},
			Source:   proposal.SourceByValue,
		})
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	applier := s.registry.applier(sess, &joinerLeaf)
	ctx := r.Context()
	state, err := applier.ApplyProposals(ctx, proposalfilter.FailInvalidProposal{}, proposal.Sender{Kind: proposal.SenderNewMemberCommit}, bundle, nil)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}

	sess.tree = state.Tree
	sess.ctx.Epoch++

	s.log.WithFields(logrus.Fields{"group_id": groupIDHex, "epoch": sess.ctx.Epoch}).Info("external commit applied")
	writeJSON(w, http.StatusOK, stateDTOFrom(state))
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func errProposalRefNotFound(ref string) error {
	return &proposalRefNotFoundError{Ref: ref}
}

type proposalRefNotFoundError struct{ Ref string }

func (e *proposalRefNotFoundError) Error() string { return "proposal ref " + e.Ref + " not found in cache" }

func stateDTOFrom(state *group.ProposalState) groupStateDTO {
	dto := groupStateDTO{MemberCount: len(state.Tree.NonEmptyLeaves())}
	for _, idx := range state.AddedIndexes {
		dto.AddedIndexes = append(dto.AddedIndexes, uint32(idx))
	}
	for _, removed := range state.RemovedLeaves {
		dto.RemovedLeaves = append(dto.RemovedLeaves, uint32(removed.Index))
	}
	if state.ExternalLeafIndex != nil {
		idx := uint32(*state.ExternalLeafIndex)
		dto.JoinerIndex = &idx
	}
	return dto
}
