package notify

import "errors"

// 定义公共错误变量
var (
	// ErrProductNotFound 商品不存在
	ErrProductNotFound = errors.New("商品不存在")
	// ErrOutOfStock 入口处库存不足,不开启回次
	ErrOutOfStock = errors.New("库存不足,无法发送补货通知")
	// ErrNoRecipients 没有可通知的订阅用户
	ErrNoRecipients = errors.New("没有订阅补货通知的用户")
	// ErrStockExhausted 发送过程中库存归零,回次以 CANCELED_BY_SOLD_OUT 终止
	ErrStockExhausted = errors.New("库存归零,补货通知发送中断")
	// ErrNothingToResume 最近回次不是中断终态,无可续传内容
	ErrNothingToResume = errors.New("没有可以续传的补货通知")
)
