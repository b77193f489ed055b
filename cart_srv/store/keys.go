package store

//key的命名规则。前缀之间互不为前缀，保证 identity -> key 一一对应，不会撞key。
const (
	skusSegment           = ":skus:"
	infosSegment          = ":infos:"
	historySkusSegment    = ":history:skus:"
	historyInfosSegment   = ":history:infos:"
	deadlineSegment       = ":deadline"
	goodsIDFieldPrefix    = "goodsId_"
	countFieldPrefix      = "count_"
	addTimeFieldPrefix    = "addTime_"
	defaultKeyspacePrefix = "cart"
)

type keyspace struct {
	root string
}

func newKeyspace(root string) keyspace {
	if root == "" {
		root = defaultKeyspacePrefix
	}
	return keyspace{root: root}
}

//有序集合，sku按加入时间排序
func (k keyspace) skus(identity string) string {
	return k.root + skusSegment + identity
}

//hash，记录item的详细信息
func (k keyspace) infos(identity string) string {
	return k.root + infosSegment + identity
}

func (k keyspace) historySkus(identity string) string {
	return k.root + historySkusSegment + identity
}

func (k keyspace) historyInfos(identity string) string {
	return k.root + historyInfosSegment + identity
}

//全局的过期时间有序集合，member是identity，score是截止时间（毫秒）
func (k keyspace) deadline() string {
	return k.root + deadlineSegment
}

func goodsIDField(skuID string) string {
	return goodsIDFieldPrefix + skuID
}

func countField(skuID string) string {
	return countFieldPrefix + skuID
}

func addTimeField(skuID string) string {
	return addTimeFieldPrefix + skuID
}

func itemFields(skuID string) []string {
	return []string{goodsIDField(skuID), countField(skuID), addTimeField(skuID)}
}

//一个cart命名空间：当前购物车或者历史购物车
type namespace struct {
	skus  string
	infos string
}

func (k keyspace) live(identity string) namespace {
	return namespace{skus: k.skus(identity), infos: k.infos(identity)}
}

func (k keyspace) history(identity string) namespace {
	return namespace{skus: k.historySkus(identity), infos: k.historyInfos(identity)}
}
