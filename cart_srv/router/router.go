package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"shopcart_srvs/cart_srv/handler"
	"shopcart_srvs/cart_srv/model"
)

type Response struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

type addItemForm struct {
	SkuID   string `json:"sku_id" binding:"required"`
	GoodsID string `json:"goods_id"`
	Count   int64  `json:"count" binding:"required"`
}

type deltaForm struct {
	Delta int64 `json:"delta"`
}

type effectiveTimeForm struct {
	IncrementMs int64 `json:"increment_ms"`
}

type cartRouter struct {
	srv *handler.CartServer
}

func InitRouter(r *gin.Engine, srv *handler.CartServer) {
	cr := &cartRouter{srv: srv}
	r.Use(Tracing())
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	g := r.Group("/v1/carts/:identity")
	{
		g.GET("", cr.info)
		g.DELETE("", cr.clear)
		g.GET("/items", cr.items)
		g.POST("/items", cr.addItem)
		g.GET("/items/:sku", cr.item)
		g.DELETE("/items/:sku", cr.delItem)
		g.PATCH("/items/:sku", cr.updateCount)
		g.PATCH("/goods/:goods", cr.decreGoods)
		g.GET("/status", cr.status)
		g.GET("/effective-time", cr.effectiveTime)
		g.POST("/effective-time", cr.extendEffectiveTime)
		g.POST("/archive", cr.archive)
		g.GET("/history", cr.history)
		g.DELETE("/history", cr.clearHistory)
		g.DELETE("/history/:sku", cr.delHistoryItem)
	}
}

//将grpc的code转换成http的状态码
func HandleGrpcErrorToHttp(err error, c *gin.Context) {
	if err == nil {
		return
	}
	e, ok := status.FromError(err)
	if !ok {
		zap.S().Errorf("未知错误: %v", err)
		c.JSON(http.StatusInternalServerError, Response{Status: "error", Message: "内部错误"})
		return
	}
	code := http.StatusInternalServerError
	switch e.Code() {
	case codes.NotFound:
		code = http.StatusNotFound
	case codes.InvalidArgument, codes.OutOfRange:
		code = http.StatusBadRequest
	case codes.ResourceExhausted, codes.FailedPrecondition:
		code = http.StatusConflict
	case codes.Unavailable:
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, Response{Status: "error", Message: e.Message()})
}

func ok(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{Status: "ok", Data: data})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, Response{Status: "error", Message: msg})
}

func (cr *cartRouter) info(c *gin.Context) {
	cart, err := cr.srv.GetCartInfo(c.Request.Context(), c.Param("identity"))
	if err != nil {
		HandleGrpcErrorToHttp(err, c)
		return
	}
	ok(c, cart)
}

func (cr *cartRouter) clear(c *gin.Context) {
	unlock := c.Query("unlock_stock") == "true"
	if err := cr.srv.ClearCart(c.Request.Context(), c.Param("identity"), unlock); err != nil {
		HandleGrpcErrorToHttp(err, c)
		return
	}
	ok(c, nil)
}

func (cr *cartRouter) items(c *gin.Context) {
	items, err := cr.srv.GetCartItems(c.Request.Context(), c.Param("identity"))
	if err != nil {
		HandleGrpcErrorToHttp(err, c)
		return
	}
	ok(c, items)
}

func (cr *cartRouter) addItem(c *gin.Context) {
	var form addItemForm
	if err := c.ShouldBindJSON(&form); err != nil {
		badRequest(c, err.Error())
		return
	}
	item, err := cr.srv.AddCartItem(c.Request.Context(), c.Param("identity"), model.CartItem{
		SkuID:   form.SkuID,
		GoodsID: form.GoodsID,
		Count:   form.Count,
	})
	if err != nil {
		HandleGrpcErrorToHttp(err, c)
		return
	}
	ok(c, item)
}

func (cr *cartRouter) item(c *gin.Context) {
	item, err := cr.srv.GetCartItem(c.Request.Context(), c.Param("identity"), c.Param("sku"))
	if err != nil {
		HandleGrpcErrorToHttp(err, c)
		return
	}
	ok(c, item)
}

func (cr *cartRouter) delItem(c *gin.Context) {
	if err := cr.srv.DelCartItem(c.Request.Context(), c.Param("identity"), c.Param("sku")); err != nil {
		HandleGrpcErrorToHttp(err, c)
		return
	}
	ok(c, nil)
}

//delta为正增加，为负减少
func (cr *cartRouter) updateCount(c *gin.Context) {
	var form deltaForm
	if err := c.ShouldBindJSON(&form); err != nil {
		badRequest(c, err.Error())
		return
	}
	identity, sku := c.Param("identity"), c.Param("sku")
	var (
		count int64
		err   error
	)
	switch {
	case form.Delta > 0:
		count, err = cr.srv.IncreCartSkuCount(c.Request.Context(), identity, sku, form.Delta)
	case form.Delta < 0:
		count, err = cr.srv.DecreCartSkuCount(c.Request.Context(), identity, sku, -form.Delta)
	default:
		badRequest(c, "delta不能为0")
		return
	}
	if err != nil {
		HandleGrpcErrorToHttp(err, c)
		return
	}
	ok(c, gin.H{"sku_id": sku, "count": count})
}

func (cr *cartRouter) decreGoods(c *gin.Context) {
	var form deltaForm
	if err := c.ShouldBindJSON(&form); err != nil {
		badRequest(c, err.Error())
		return
	}
	if form.Delta >= 0 {
		badRequest(c, "只支持减少数量")
		return
	}
	if err := cr.srv.DecreCartSkuCountByGoodsID(c.Request.Context(), c.Param("identity"), c.Param("goods"), -form.Delta); err != nil {
		HandleGrpcErrorToHttp(err, c)
		return
	}
	ok(c, nil)
}

func (cr *cartRouter) status(c *gin.Context) {
	s, err := cr.srv.GetCartStatus(c.Request.Context(), c.Param("identity"))
	if err != nil {
		HandleGrpcErrorToHttp(err, c)
		return
	}
	ok(c, gin.H{"status": s.String()})
}

func (cr *cartRouter) effectiveTime(c *gin.Context) {
	remain, err := cr.srv.GetCartEffectiveTime(c.Request.Context(), c.Param("identity"))
	if err != nil {
		HandleGrpcErrorToHttp(err, c)
		return
	}
	ok(c, gin.H{"effective_time": remain})
}

//increment_ms为0时重置为默认有效期
func (cr *cartRouter) extendEffectiveTime(c *gin.Context) {
	var form effectiveTimeForm
	if err := c.ShouldBindJSON(&form); err != nil {
		badRequest(c, err.Error())
		return
	}
	identity := c.Param("identity")
	if form.IncrementMs == 0 {
		if err := cr.srv.ResetCartEffectiveTime(c.Request.Context(), identity); err != nil {
			HandleGrpcErrorToHttp(err, c)
			return
		}
	} else if _, err := cr.srv.ExtendCartEffectiveTime(c.Request.Context(), identity, form.IncrementMs); err != nil {
		HandleGrpcErrorToHttp(err, c)
		return
	}
	cr.effectiveTime(c)
}

func (cr *cartRouter) archive(c *gin.Context) {
	items, err := cr.srv.ArchiveCart(c.Request.Context(), c.Param("identity"))
	if err != nil {
		HandleGrpcErrorToHttp(err, c)
		return
	}
	ok(c, items)
}

func (cr *cartRouter) history(c *gin.Context) {
	items, err := cr.srv.GetCartHistoryItems(c.Request.Context(), c.Param("identity"))
	if err != nil {
		HandleGrpcErrorToHttp(err, c)
		return
	}
	ok(c, items)
}

func (cr *cartRouter) clearHistory(c *gin.Context) {
	if err := cr.srv.ClearCartHistory(c.Request.Context(), c.Param("identity")); err != nil {
		HandleGrpcErrorToHttp(err, c)
		return
	}
	ok(c, nil)
}

func (cr *cartRouter) delHistoryItem(c *gin.Context) {
	if err := cr.srv.DelCartHistoryItem(c.Request.Context(), c.Param("identity"), c.Param("sku")); err != nil {
		HandleGrpcErrorToHttp(err, c)
		return
	}
	ok(c, nil)
}
