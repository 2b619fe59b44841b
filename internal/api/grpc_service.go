package api

import (
	"context"
	"encoding/json"
	"strings"

	"barangay/internal/domain"
	"barangay/internal/models"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	borrowingServiceName    = "barangay.borrowing.v1.BorrowingService"
	methodCheckAvailability = "/" + borrowingServiceName + "/CheckAvailability"
	methodListItems         = "/" + borrowingServiceName + "/ListItems"
)

// BorrowingServer exchanges google.protobuf.Struct messages, so clients need no
// generated stubs.
type BorrowingServer interface {
	CheckAvailability(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ListItems(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

var borrowingServiceDesc = grpc.ServiceDesc{
	ServiceName: borrowingServiceName,
	HandlerType: (*BorrowingServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "CheckAvailability", Handler: checkAvailabilityHandler},
		{MethodName: "ListItems", Handler: listItemsHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "barangay/borrowing/v1/borrowing.proto",
}

func RegisterBorrowingServer(s grpc.ServiceRegistrar, srv BorrowingServer) {
	s.RegisterService(&borrowingServiceDesc, srv)
}

func checkAvailabilityHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(BorrowingServer).CheckAvailability(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodCheckAvailability}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(BorrowingServer).CheckAvailability(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func listItemsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(BorrowingServer).ListItems(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodListItems}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(BorrowingServer).ListItems(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

type BorrowingService struct {
	borrow domain.BorrowService
	items  domain.ItemService
}

func NewBorrowingService(borrow domain.BorrowService, items domain.ItemService) *BorrowingService {
	return &BorrowingService{borrow: borrow, items: items}
}

// CheckAvailability expects {item_id, borrow_date, return_date}.
func (s *BorrowingService) CheckAvailability(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.GetFields()

	itemID := int64(fields["item_id"].GetNumberValue())
	if itemID <= 0 {
		return nil, status.Error(codes.InvalidArgument, "item_id is required")
	}

	start, err := models.ParseDate(strings.TrimSpace(fields["borrow_date"].GetStringValue()))
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, "invalid borrow_date; expected YYYY-MM-DD")
	}
	end, err := models.ParseDate(strings.TrimSpace(fields["return_date"].GetStringValue()))
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, "invalid return_date; expected YYYY-MM-DD")
	}

	view, err := s.borrow.CheckAvailability(ctx, itemID, start, end)
	if err != nil {
		return nil, grpcError(err)
	}
	return toStruct(view)
}

func (s *BorrowingService) ListItems(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	includeInactive := req.GetFields()["include_inactive"].GetBoolValue()
	items, err := s.items.GetItems(ctx, includeInactive)
	if err != nil {
		return nil, grpcError(err)
	}
	if items == nil {
		items = []*models.Item{}
	}
	return toStruct(map[string]any{"items": items})
}

// toStruct goes through JSON so the wire shape matches the HTTP API.
func toStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, status.Error(codes.Internal, "encode response")
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, status.Error(codes.Internal, "encode response")
	}
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Error(codes.Internal, "encode response")
	}
	return out, nil
}
