package bot

// Commands understood by the bot.
const (
	CommandOnce        = "/once"
	CommandSubscribe   = "/sub"
	CommandUnsubscribe = "/unsub"
	CommandZjuam       = "/zjuam"
	CommandCookie      = "/cookie"
)

// Fixed reply strings sent to the chat.
const (
	ReplyUsage = "欢迎使用机器人，它可以：\n" +
		"\n/once - 通过浙大钉API查询一次成绩\n" +
		"/sub - 订阅成绩变动，服务器将每5分钟查询一次成绩\n" +
		"/unsub - 取消订阅\n" +
		"\n机器人可通过两种方式登录教务网：\n" +
		"1. 学号 + 统一身份认证密码\n" +
		"2. Cookies\n" +
		"\n一次查询模式下，机器人不会记录任何数据。订阅模式下，机器人不会记录您的学号和密码，但是会记录Cookies，以便定时查询。当Cookie失效时，机器人将通知您。"

	ReplyVerifyMethodSelect = "请选择身份验证方式：\n" +
		"/zjuam 统一身份认证账号和密码\n" +
		"/cookie 名为iPlanetDirectoryPro的Cookie"

	ReplyEnterUsername = "好的，请输入您的学号："
	ReplyEnterPassword = "收到，请继续输入统一身份认证密码："
	ReplyEnterCookie   = "好的，请输入您的Cookie，其开头包含：" +
		"\"iPlanetDirectoryPro=\"，内容不含空格，并以分号结尾："

	ReplyQuerying          = "收到，正在尝试获取成绩……"
	ReplySubscribeQuerying = "您已有订阅，正在尝试获取成绩……"
	ReplyQuerySuccess      = "认证成功，您的成绩为：\n"
	ReplyQueryFail         = "获取成绩失败，错误信息：\n"
	ReplySubscribeSuccess  = "订阅成功，您将在成绩变动时收到通知。\n此外，您还可以通过 /once 来主动获取成绩。"

	ReplyUnsubscribing   = "正在取消订阅……"
	ReplyUnsubscribed    = "取消订阅成功"
	ReplyNoSubscription  = "您似乎没有订阅"
	ReplyChangeNotice    = "成绩变动通知：\n"
	ReplyForcedUnsubFail = "查询失败，已为您取消订阅\n错误信息：\n"
)
