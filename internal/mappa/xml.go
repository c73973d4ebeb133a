package mappa

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strconv"
)

type xmlFloor struct {
	XMLName     xml.Name     `xml:"Floor"`
	Layout      *xmlLayout   `xml:"FloorLayout"`
	Monsters    []xmlMonster `xml:"MonsterList>Monster"`
	Traps       []xmlTrap    `xml:"TrapList>Trap"`
	FloorItems  xmlItemList  `xml:"FloorItems"`
	BuriedItems xmlItemList  `xml:"BuriedItems"`
}

type xmlLayout struct {
	Structure           string `xml:"structure,attr"`
	Tileset             int    `xml:"tileset,attr"`
	RoomDensity         int    `xml:"room_density,attr"`
	FloorConnectivity   int    `xml:"floor_connectivity,attr"`
	ExtraHallwayDensity int    `xml:"extra_hallway_density,attr"`
	DeadEnds            bool   `xml:"dead_ends,attr"`
	InitialEnemyDensity int    `xml:"initial_enemy_density,attr"`
	ItemDensity         int    `xml:"item_density,attr"`
	BuriedItemDensity   int    `xml:"buried_item_density,attr"`
	TrapDensity         int    `xml:"trap_density,attr"`
	KecleonShopChance   int    `xml:"kecleon_shop_chance,attr"`
	MonsterHouseChance  int    `xml:"monster_house_chance,attr"`
	UnusedChance        int    `xml:"unused_chance,attr"`
	WaterDensity        int    `xml:"water_density,attr"`

	Terrain struct {
		HasSecondaryTerrain    bool `xml:"has_secondary_terrain,attr"`
		GenerateImperfectRooms bool `xml:"generate_imperfect_rooms,attr"`
	} `xml:"TerrainSettings"`
}

type xmlMonster struct {
	Species int `xml:"id,attr"`
	Level   int `xml:"level,attr"`
	Weight  int `xml:"weight,attr"`
}

type xmlTrap struct {
	Name   string `xml:"name,attr"`
	Weight int    `xml:"weight,attr"`
}

type xmlItemList struct {
	Categories []xmlCategory `xml:"Categories>Category"`
	Items      []xmlItem     `xml:"Items>Item"`
}

type xmlCategory struct {
	Name   string `xml:"name,attr"`
	Weight int    `xml:"weight,attr"`
}

type xmlItem struct {
	ID     int    `xml:"id,attr"`
	Weight string `xml:"weight,attr"`
}

// ParseFloorXML decodes and validates a floor description. Decoding
// failures wrap ErrMalformed, semantic failures wrap ErrInvalid.
func ParseFloorXML(data []byte, catalog *Catalog) (*Floor, error) {
	var doc xmlFloor
	dec := xml.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if doc.Layout == nil {
		return nil, fmt.Errorf("%w: missing FloorLayout element", ErrInvalid)
	}

	floor, err := doc.toFloor(catalog)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := floor.Validate(); err != nil {
		return nil, err
	}
	return floor, nil
}

func (doc *xmlFloor) toFloor(catalog *Catalog) (*Floor, error) {
	l := doc.Layout
	structure, err := ParseStructure(l.Structure)
	if err != nil {
		return nil, err
	}

	floor := &Floor{
		Layout: Layout{
			Structure:           structure,
			TilesetID:           l.Tileset,
			RoomDensity:         l.RoomDensity,
			FloorConnectivity:   l.FloorConnectivity,
			ExtraHallwayDensity: l.ExtraHallwayDensity,
			DeadEnds:            l.DeadEnds,
			InitialEnemyDensity: l.InitialEnemyDensity,
			ItemDensity:         l.ItemDensity,
			BuriedItemDensity:   l.BuriedItemDensity,
			TrapDensity:         l.TrapDensity,
			KecleonShopChance:   l.KecleonShopChance,
			MonsterHouseChance:  l.MonsterHouseChance,
			UnusedChance:        l.UnusedChance,
			HasSecondaryTerrain: l.Terrain.HasSecondaryTerrain,
			SecondaryDensity:    l.WaterDensity,
			ImperfectRooms:      l.Terrain.GenerateImperfectRooms,
		},
	}

	for _, m := range doc.Monsters {
		floor.Monsters = append(floor.Monsters, MonsterSpawn(m))
	}
	for _, t := range doc.Traps {
		id, err := ParseTrap(t.Name)
		if err != nil {
			return nil, err
		}
		floor.Traps = append(floor.Traps, TrapSpawn{Trap: id, Weight: t.Weight})
	}

	if floor.FloorItems, err = doc.FloorItems.toItemList(catalog); err != nil {
		return nil, fmt.Errorf("floor items: %w", err)
	}
	if floor.BuriedItems, err = doc.BuriedItems.toItemList(catalog); err != nil {
		return nil, fmt.Errorf("buried items: %w", err)
	}
	return floor, nil
}

func (x xmlItemList) toItemList(catalog *Catalog) (ItemList, error) {
	var list ItemList
	for _, c := range x.Categories {
		cat, ok := catalog.ByName(c.Name)
		if !ok {
			n, err := strconv.Atoi(c.Name)
			if err != nil {
				return ItemList{}, fmt.Errorf("unknown item category %q", c.Name)
			}
			if cat, ok = catalog.Lookup(n); !ok {
				return ItemList{}, fmt.Errorf("unknown item category %d", n)
			}
		}
		list.Categories = append(list.Categories, CategorySpawn{Category: cat.ID, Weight: c.Weight})
	}
	for _, it := range x.Items {
		w, err := parseItemWeight(it.Weight)
		if err != nil {
			return ItemList{}, fmt.Errorf("item %d: %w", it.ID, err)
		}
		list.Items = append(list.Items, ItemSpawn{Item: it.ID, Weight: w})
	}
	return list, nil
}

// parseItemWeight accepts a number or the literal GUARANTEED.
func parseItemWeight(s string) (int, error) {
	if s == "GUARANTEED" {
		return Guaranteed, nil
	}
	w, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("bad weight %q", s)
	}
	return w, nil
}
