package api

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/solatis/mutguard/internal/guard"
	"github.com/solatis/mutguard/internal/intercept"
	"github.com/solatis/mutguard/internal/types"
	"google.golang.org/protobuf/types/known/structpb"
)

// GuardService implements the guard gRPC service over a Registry. Requests
// and responses are structpb.Struct messages:
//
//	Create     {name, value, maxMutations?, options?} -> snapshot
//	Get        {name, path?}                          -> {value}
//	Set        {name, value}                          -> snapshot
//	SetPath    {name, path, value}                    -> snapshot
//	DeletePath {name, path}                           -> snapshot
//	Invoke     {name, path, method, args?}            -> {result, snapshot}
//	Freeze, Reset, Snapshot {name}                    -> snapshot
//	History    {name}                                 -> {records}
//	List       {}                                     -> {guards}
type GuardService struct {
	registry *Registry
}

// NewGuardService creates the service over registry.
func NewGuardService(registry *Registry) (*GuardService, error) {
	if registry == nil {
		return nil, fmt.Errorf("registry cannot be nil")
	}
	return &GuardService{registry: registry}, nil
}

func (s *GuardService) Create(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	name, err := requireString(req, "name")
	if err != nil {
		return nil, ToStatus(err)
	}
	ov, err := overridesFrom(req)
	if err != nil {
		return nil, ToStatus(err)
	}
	snap, err := s.registry.Create(ctx, name, field(req, "value").AsInterface(), ov)
	return snapshotResponse(snap, err)
}

func (s *GuardService) Get(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	name, err := requireString(req, "name")
	if err != nil {
		return nil, ToStatus(err)
	}

	var value any
	if raw := field(req, "path").GetStringValue(); raw != "" {
		path, perr := intercept.ParsePath(raw)
		if perr != nil {
			return nil, ToStatus(perr)
		}
		value, err = s.registry.Lookup(ctx, name, path)
	} else {
		value, err = s.registry.Get(ctx, name)
	}
	if err != nil {
		return nil, ToStatus(err)
	}
	return respond(map[string]any{"value": value})
}

func (s *GuardService) Set(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	name, err := requireString(req, "name")
	if err != nil {
		return nil, ToStatus(err)
	}
	snap, err := s.registry.Set(ctx, name, field(req, "value").AsInterface())
	return snapshotResponse(snap, err)
}

func (s *GuardService) SetPath(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	name, path, err := namePath(req)
	if err != nil {
		return nil, ToStatus(err)
	}
	snap, err := s.registry.SetPath(ctx, name, path, field(req, "value").AsInterface())
	return snapshotResponse(snap, err)
}

func (s *GuardService) DeletePath(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	name, path, err := namePath(req)
	if err != nil {
		return nil, ToStatus(err)
	}
	snap, err := s.registry.DeletePath(ctx, name, path)
	return snapshotResponse(snap, err)
}

func (s *GuardService) Invoke(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	name, err := requireString(req, "name")
	if err != nil {
		return nil, ToStatus(err)
	}
	path, err := intercept.ParsePath(field(req, "path").GetStringValue())
	if err != nil {
		return nil, ToStatus(err)
	}
	method, err := requireString(req, "method")
	if err != nil {
		return nil, ToStatus(err)
	}
	var args []any
	if list := field(req, "args").GetListValue(); list != nil {
		args = list.AsSlice()
	}

	result, snap, err := s.registry.Invoke(ctx, name, path, method, args)
	if err != nil {
		return nil, ToStatus(err)
	}
	return respond(map[string]any{"result": result, "snapshot": snap})
}

func (s *GuardService) Freeze(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	name, err := requireString(req, "name")
	if err != nil {
		return nil, ToStatus(err)
	}
	snap, err := s.registry.Freeze(ctx, name)
	return snapshotResponse(snap, err)
}

func (s *GuardService) Reset(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	name, err := requireString(req, "name")
	if err != nil {
		return nil, ToStatus(err)
	}
	snap, err := s.registry.Reset(ctx, name)
	return snapshotResponse(snap, err)
}

func (s *GuardService) Snapshot(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	name, err := requireString(req, "name")
	if err != nil {
		return nil, ToStatus(err)
	}
	snap, err := s.registry.Snapshot(ctx, name)
	return snapshotResponse(snap, err)
}

func (s *GuardService) History(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	name, err := requireString(req, "name")
	if err != nil {
		return nil, ToStatus(err)
	}
	records, err := s.registry.History(ctx, name)
	if err != nil {
		return nil, ToStatus(err)
	}
	return respond(map[string]any{"records": records})
}

func (s *GuardService) List(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	names := s.registry.Names()
	guards := make([]guard.Snapshot, 0, len(names))
	for _, name := range names {
		snap, err := s.registry.Snapshot(ctx, name)
		if err != nil {
			// removed between Names and Snapshot
			continue
		}
		snap.History = nil
		guards = append(guards, snap)
	}
	return respond(map[string]any{"guards": guards})
}

func snapshotResponse(snap guard.Snapshot, err error) (*structpb.Struct, error) {
	if err != nil {
		return nil, ToStatus(err)
	}
	out, err := snap.ToProto()
	if err != nil {
		return nil, ToStatus(err)
	}
	return out, nil
}

// respond converts v to a Struct through its JSON form.
func respond(v map[string]any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, ToStatus(fmt.Errorf("encoding response: %w", err))
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, ToStatus(fmt.Errorf("decoding response: %w", err))
	}
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, ToStatus(err)
	}
	return out, nil
}

func field(req *structpb.Struct, key string) *structpb.Value {
	return req.GetFields()[key]
}

func requireString(req *structpb.Struct, key string) (string, error) {
	v := field(req, key)
	if _, ok := v.GetKind().(*structpb.Value_StringValue); !ok || v.GetStringValue() == "" {
		return "", fmt.Errorf("%w: %s must be a non-empty string", ErrInvalidRequest, key)
	}
	return v.GetStringValue(), nil
}

func namePath(req *structpb.Struct) (string, types.Path, error) {
	name, err := requireString(req, "name")
	if err != nil {
		return "", nil, err
	}
	raw, err := requireString(req, "path")
	if err != nil {
		return "", nil, err
	}
	path, err := intercept.ParsePath(raw)
	if err != nil {
		return "", nil, err
	}
	return name, path, nil
}

func overridesFrom(req *structpb.Struct) (Overrides, error) {
	var ov Overrides
	if v := field(req, "maxMutations"); v != nil {
		n, ok := v.GetKind().(*structpb.Value_NumberValue)
		if !ok || n.NumberValue != math.Trunc(n.NumberValue) || math.Abs(n.NumberValue) > math.MaxInt32 {
			return ov, fmt.Errorf("%w: maxMutations must be an integer", ErrInvalidRequest)
		}
		limit := int(n.NumberValue)
		ov.MaxMutations = &limit
	}

	opts := field(req, "options").GetStructValue()
	if opts == nil {
		return ov, nil
	}
	bools := map[string]**bool{
		"strictMode":         &ov.StrictMode,
		"trackHistory":       &ov.TrackHistory,
		"allowReset":         &ov.AllowReset,
		"autoFreeze":         &ov.AutoFreeze,
		"trackDeepMutations": &ov.TrackDeepMutations,
	}
	for key, v := range opts.GetFields() {
		if key == "errorMessage" {
			msg := v.GetStringValue()
			ov.ErrorMessage = &msg
			continue
		}
		dst, known := bools[key]
		if !known {
			return ov, fmt.Errorf("%w: unknown option %q", ErrInvalidRequest, key)
		}
		b, ok := v.GetKind().(*structpb.Value_BoolValue)
		if !ok {
			return ov, fmt.Errorf("%w: option %s must be a boolean", ErrInvalidRequest, key)
		}
		val := b.BoolValue
		*dst = &val
	}
	return ov, nil
}
