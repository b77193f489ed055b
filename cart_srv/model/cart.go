package model

//购物车的一行记录，skuId在一个购物车内唯一
type CartItem struct {
	SkuID   string `json:"sku_id"`
	GoodsID string `json:"goods_id"`
	Count   int64  `json:"count"`    //累计加购数量
	AddTime int64  `json:"add_time"` //加入时间，毫秒
}

//购物车是否有效，只能计算出来，不单独存储
type CartStatus int

const (
	CartNoEffective CartStatus = iota
	CartEffective
)

func (s CartStatus) String() string {
	if s == CartEffective {
		return "EFFECTIVE"
	}
	return "NOEFFECTIVE"
}

//购物车汇总信息
type Cart struct {
	Identity      string     `json:"identity"`
	ItemTotal     int64      `json:"item_total"`     //不同sku的数量
	SkuTotal      int64      `json:"sku_total"`      //所有sku的件数
	EffectiveTime int64      `json:"effective_time"` //剩余有效时间，毫秒
	Items         []CartItem `json:"items"`
	HistoryItems  []CartItem `json:"history_items"`
}
