package family

import "github.com/ahkjxy/family-points-bank-sub000/internal/model"

// DefaultTasks is the catalog a new family starts with.
var DefaultTasks = []model.Task{
	{Category: model.CategoryChores, Title: "扫地", Description: "把客厅和卧室的地扫干净", Points: 1, Frequency: "每日"},
	{Category: model.CategoryChores, Title: "洗碗", Description: "饭后洗碗并擦干", Points: 2, Frequency: "每日"},
	{Category: model.CategoryChores, Title: "整理房间", Description: "床铺、书桌和玩具归位", Points: 2, Frequency: "每周"},
	{Category: model.CategoryLearning, Title: "完成作业", Description: "按时独立完成当天作业", Points: 2, Frequency: "每日"},
	{Category: model.CategoryLearning, Title: "阅读30分钟", Description: "安静阅读课外书", Points: 1, Frequency: "每日"},
	{Category: model.CategoryDiscipline, Title: "按时睡觉", Description: "晚上九点前上床", Points: 1, Frequency: "每日"},
	{Category: model.CategoryPenalty, Title: "说脏话", Points: -2},
	{Category: model.CategoryPenalty, Title: "拖延作业", Points: -1},
	{Category: model.CategoryReward, Title: "考试满分", Description: "任意一门考试得满分", Points: 10},
}

// DefaultRewards is the reward list a new family starts with.
var DefaultRewards = []model.Reward{
	{Title: "看电视30分钟", Points: 5, Type: model.RewardPrivilege},
	{Title: "冰淇淋", Points: 10, Type: model.RewardPhysical},
	{Title: "周末出游", Points: 50, Type: model.RewardPrivilege},
	{Title: "新玩具", Points: 100, Type: model.RewardPhysical},
}
