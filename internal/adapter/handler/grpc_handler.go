package handler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/rl1809/mini-oms/internal/core/domain"
	"github.com/rl1809/mini-oms/internal/core/service"
)

type GRPCHandler struct {
	auth   *service.AuthService
	orders *service.OrderService
}

func NewGRPCHandler(auth *service.AuthService, orders *service.OrderService) *GRPCHandler {
	return &GRPCHandler{auth: auth, orders: orders}
}

func (h *GRPCHandler) ChangeOrderStatus(ctx context.Context, req *ChangeOrderStatusRequest) (*ChangeOrderStatusResponse, error) {
	principal, err := h.authorize(ctx, domain.CapChangeOrderStatus)
	if err != nil {
		return nil, grpcError(err)
	}
	if req.OrderID == "" {
		return nil, grpcError(fmt.Errorf("%w: orderId is required", service.ErrValidation))
	}

	order, err := h.orders.ChangeStatus(ctx, req.OrderID, req.Status, principal.UserID)
	if err != nil {
		return nil, grpcError(err)
	}
	return &ChangeOrderStatusResponse{Order: order}, nil
}

func (h *GRPCHandler) GetAnalytics(ctx context.Context, _ *GetAnalyticsRequest) (*GetAnalyticsResponse, error) {
	if _, err := h.authorize(ctx, domain.CapViewAnalytics); err != nil {
		return nil, grpcError(err)
	}

	analytics, err := h.orders.Analytics(ctx)
	if err != nil {
		return nil, grpcError(err)
	}
	return &GetAnalyticsResponse{Data: analytics}, nil
}

func (h *GRPCHandler) authorize(ctx context.Context, c domain.Capability) (domain.Principal, error) {
	var token string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if values := md.Get("authorization"); len(values) > 0 {
			token = bearerToken(values[0])
		}
	}

	principal, err := h.auth.Authenticate(token)
	if err != nil {
		return domain.Principal{}, err
	}
	if !principal.Role.Can(c) {
		return domain.Principal{}, fmt.Errorf("%w: role %s may not %s", service.ErrForbidden, principal.Role, c)
	}
	return principal, nil
}

// LoggingInterceptor records every unary call with its outcome.
func LoggingInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		fields := []zap.Field{
			zap.String("method", info.FullMethod),
			zap.String("code", status.Code(err).String()),
			zap.Duration("duration", time.Since(start)),
		}
		if err != nil {
			logger.Warn("grpc request failed", append(fields, zap.Error(err))...)
		} else {
			logger.Info("grpc request", fields...)
		}
		return resp, err
	}
}
