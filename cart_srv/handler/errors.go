package handler

import (
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var (
	ErrCartFull     = status.Error(codes.ResourceExhausted, "购物车已满")
	ErrCartExpired  = status.Error(codes.FailedPrecondition, "购物车已失效")
	ErrItemNotFound = status.Error(codes.NotFound, "购物车记录不存在")
)

func skuLimitErr(max int64) error {
	return status.Errorf(codes.OutOfRange, "该商品最多只能购买%d件", max)
}

func invalidArgErr(msg string) error {
	return status.Error(codes.InvalidArgument, msg)
}

//redis异常统一返回Internal，具体原因只打日志
func internalErr(op string, err error) error {
	zap.S().Errorf("%s失败: %v", op, err)
	return status.Errorf(codes.Internal, "购物车服务异常，请重试")
}
