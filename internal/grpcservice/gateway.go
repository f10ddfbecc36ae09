package grpcservice

import (
	"fmt"
	"net/http"
	"strconv"

	gwruntime "github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// gateway exposes the HistoryService as HTTP/JSON on the same socket, for
// scripts and curl --unix-socket:
//
//	GET    /v1/history?limit=N
//	DELETE /v1/history
//	POST   /v1/history/{id}/restore
//	GET    /v1/status
type gateway struct {
	svc *Service
	mux *gwruntime.ServeMux
}

// NewGateway returns an HTTP handler serving svc as JSON.
func NewGateway(svc *Service) (http.Handler, error) {
	g := &gateway{svc: svc}
	g.mux = gwruntime.NewServeMux(
		gwruntime.WithMarshalerOption(gwruntime.MIMEWildcard, &gwruntime.JSONPb{
			MarshalOptions:   protojson.MarshalOptions{EmitUnpopulated: true},
			UnmarshalOptions: protojson.UnmarshalOptions{DiscardUnknown: true},
		}),
	)

	routes := []struct {
		method, pattern string
		h               gwruntime.HandlerFunc
	}{
		{http.MethodGet, "/v1/history", g.recent},
		{http.MethodDelete, "/v1/history", g.clear},
		{http.MethodPost, "/v1/history/{id}/restore", g.restore},
		{http.MethodGet, "/v1/status", g.status},
	}
	for _, r := range routes {
		if err := g.mux.HandlePath(r.method, r.pattern, r.h); err != nil {
			return nil, fmt.Errorf("gateway route %s %s: %w", r.method, r.pattern, err)
		}
	}
	return g.mux, nil
}

func (g *gateway) recent(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	var limit uint64
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			g.respond(w, r, nil, status.Errorf(codes.InvalidArgument, "limit: %v", err))
			return
		}
		limit = n
	}
	resp, err := g.svc.Recent(r.Context(), wrapperspb.UInt32(uint32(limit)))
	g.respond(w, r, resp, err)
}

func (g *gateway) clear(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	resp, err := g.svc.Clear(r.Context(), &emptypb.Empty{})
	g.respond(w, r, resp, err)
}

func (g *gateway) restore(w http.ResponseWriter, r *http.Request, params map[string]string) {
	id, err := strconv.ParseInt(params["id"], 10, 64)
	if err != nil {
		g.respond(w, r, nil, status.Errorf(codes.InvalidArgument, "id: %v", err))
		return
	}
	resp, err := g.svc.Restore(r.Context(), wrapperspb.Int64(id))
	g.respond(w, r, resp, err)
}

func (g *gateway) status(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	resp, err := g.svc.Status(r.Context(), &emptypb.Empty{})
	g.respond(w, r, resp, err)
}

func (g *gateway) respond(w http.ResponseWriter, r *http.Request, msg proto.Message, err error) {
	_, out := gwruntime.MarshalerForRequest(g.mux, r)
	if err != nil {
		gwruntime.HTTPError(r.Context(), g.mux, out, w, r, err)
		return
	}
	buf, err := out.Marshal(msg)
	if err != nil {
		gwruntime.HTTPError(r.Context(), g.mux, out, w, r, status.Error(codes.Internal, err.Error()))
		return
	}
	w.Header().Set("Content-Type", out.ContentType(msg))
	_, _ = w.Write(buf)
}
